package browser

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/api/schemas"
)

// Detector turns a page screenshot into the indexed interactive elements the
// oracle addresses. The current implementation synthesizes plausible
// detections without inspecting the image; it stands in for a computer
// vision backend behind the same interface.
type Detector interface {
	DetectFromImage(ctx context.Context, screenshot []byte, detectSheets bool) ([]schemas.InteractiveElement, error)
}

// Detection canvas dimensions, in CSS pixels.
const (
	detectionWidth  = 800
	detectionHeight = 600
)

// MockDetector generates sample elements: random boxes in the normal mode, a
// fixed cell grid when sheet detection is requested.
type MockDetector struct {
	rng    *rand.Rand
	logger *zap.Logger
}

var _ Detector = (*MockDetector)(nil)

// NewMockDetector seeds the detector. A nil rng falls back to the shared
// global source.
func NewMockDetector(rng *rand.Rand, logger *zap.Logger) *MockDetector {
	return &MockDetector{rng: rng, logger: logger.Named("detector")}
}

func (d *MockDetector) DetectFromImage(ctx context.Context, screenshot []byte, detectSheets bool) ([]schemas.InteractiveElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if detectSheets {
		return d.generateSheetElements(), nil
	}
	return d.generateCVElements(), nil
}

func (d *MockDetector) intn(n int) int {
	if d.rng != nil {
		return d.rng.Intn(n)
	}
	return rand.Intn(n)
}

// generateCVElements produces 3 to 8 random boxes on the detection canvas.
func (d *MockDetector) generateCVElements() []schemas.InteractiveElement {
	count := 3 + d.intn(6)
	d.logger.Debug("Generating mock CV elements", zap.Int("count", count))

	elements := make([]schemas.InteractiveElement, 0, count)
	for i := 0; i < count; i++ {
		x := float64(10 + d.intn(detectionWidth-110))
		y := float64(10 + d.intn(detectionHeight-110))
		w := float64(50 + d.intn(151))
		h := float64(30 + d.intn(71))
		if x+w > detectionWidth {
			w = detectionWidth - x
		}
		if y+h > detectionHeight {
			h = detectionHeight - y
		}

		box := schemas.Rect{X: x, Y: y, Width: w, Height: h}
		elements = append(elements, schemas.InteractiveElement{
			Index:        i,
			ID:           fmt.Sprintf("cv-%d", i),
			TagName:      "element",
			ViewportRect: box,
			PageRect:     box,
			Center:       schemas.Point{X: x + w/2, Y: y + h/2},
		})
	}
	return elements
}

// generateSheetElements produces a 5x8 grid of cells covering the canvas.
func (d *MockDetector) generateSheetElements() []schemas.InteractiveElement {
	const rows, cols = 5, 8
	cellWidth := float64(detectionWidth) / cols
	cellHeight := float64(detectionHeight) / rows

	elements := make([]schemas.InteractiveElement, 0, rows*cols)
	index := 0
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			x := float64(col) * cellWidth
			y := float64(row) * cellHeight
			box := schemas.Rect{X: x, Y: y, Width: cellWidth, Height: cellHeight}
			elements = append(elements, schemas.InteractiveElement{
				Index:        index,
				ID:           fmt.Sprintf("cell-%d-%d", row, col),
				TagName:      "cell",
				ViewportRect: box,
				PageRect:     box,
				Center:       schemas.Point{X: x + cellWidth/2, Y: y + cellHeight/2},
			})
			index++
		}
	}
	d.logger.Debug("Generated mock sheet elements", zap.Int("count", len(elements)))
	return elements
}
