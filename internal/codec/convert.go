package codec

import (
	"github.com/google/uuid"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

func toUUID[T ~[16]byte](id T) uuid.UUID { return uuid.UUID(id) }

func toPlayerID(u uuid.UUID) model.PlayerID           { return model.PlayerID(u) }
func toSessionID(u uuid.UUID) model.SessionID         { return model.SessionID(u) }
func toCarConfigID(u uuid.UUID) model.CarConfigID     { return model.CarConfigID(u) }
func toTrackConfigID(u uuid.UUID) model.TrackConfigID { return model.TrackConfigID(u) }
