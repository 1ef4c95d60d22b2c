package content

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gdoct/apexsim-sub001/internal/model"
)

// LoadTracksFromDir reads every *.csv file in dir as a track centerline:
// each row is "x,y", optionally with a third width column; the track
// has one uniform width, taken from the last row that gives one.
// '#'-prefixed lines are comments. Grounded on the
// teacher corpus's loadTrackFromCSV (encoding/csv with reader.Comment =
// '#'), generalized from left/right boundary columns to a single
// centerline with cumulative arc length, matching §3's TrackConfig.
func LoadTracksFromDir(dir string) ([]*model.TrackConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("content: reading track directory %s: %w", dir, err)
	}

	var tracks []*model.TrackConfig
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		track, err := loadTrackFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if len(tracks) == 0 {
		return nil, &ErrEmpty{Dir: dir}
	}
	return tracks, nil
}

func loadTrackFile(path string) (*model.TrackConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: opening track file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("content: parsing track file %s: %w", path, err)
	}

	width := 12.0
	points := make([]model.CenterlinePoint, 0, len(records))
	cumulative := 0.0
	var prevX, prevY float64
	for i, record := range records {
		if len(record) < 2 {
			continue
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("content: malformed row %d in %s", i, path)
		}
		if len(record) >= 3 {
			if w, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64); err == nil {
				width = w
			}
		}

		if i > 0 {
			cumulative += math.Hypot(x-prevX, y-prevY)
		}
		points = append(points, model.CenterlinePoint{X: x, Y: y, ArcLength: cumulative})
		prevX, prevY = x, y
	}

	if len(points) < 2 {
		return nil, fmt.Errorf("content: track file %s has fewer than two centerline points", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".csv")
	return &model.TrackConfig{
		ID:         model.TrackConfigID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))),
		Name:       name,
		Centerline: points,
		WidthM:     width,
		GridSlots:  buildGridSlots(points, width),
	}, nil
}

// buildGridSlots lays starting slots out in a staggered two-file grid
// behind the start/finish line, offset perpendicular to the initial
// heading so cars do not start stacked on top of each other.
func buildGridSlots(points []model.CenterlinePoint, width float64) []model.GridSlot {
	const maxGridSlots = 20
	const slotSpacingM = 8.0

	if len(points) < 2 {
		return nil
	}

	dx := points[1].X - points[0].X
	dy := points[1].Y - points[0].Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		length = 1
	}
	dirX, dirY := dx/length, dy/length
	perpX, perpY := -dirY, dirX

	slots := make([]model.GridSlot, 0, maxGridSlots)
	for i := 0; i < maxGridSlots; i++ {
		row := i / 2
		side := 1.0
		if i%2 == 1 {
			side = -1.0
		}
		back := float64(row) * slotSpacingM
		lateral := side * width / 4

		slots = append(slots, model.GridSlot{
			Index:  i,
			X:      points[0].X - dirX*back + perpX*lateral,
			Y:      points[0].Y - dirY*back + perpY*lateral,
			YawRad: math.Atan2(dirY, dirX),
		})
	}
	return slots
}
