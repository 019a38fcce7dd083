package ledger

import (
	"testing"
	"time"

	"tradecore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func point(ts time.Time) model.ChartPoint {
	return model.ChartPoint{Timestamp: ts.UnixMilli(), Total: decimal.Zero}
}

func TestFilterResolution_All(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []model.ChartPoint{point(base), point(base.Add(time.Minute)), point(base.Add(2 * time.Minute))}

	out := filterResolution(points, ResolutionAll)
	assert.Len(t, out, 3)
}

func TestFilterResolution_Hourly(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	points := []model.ChartPoint{
		point(base),
		point(base.Add(20 * time.Minute)),
		point(base.Add(59 * time.Minute)),
		point(base.Add(61 * time.Minute)), // next hour bucket
	}

	out := filterResolution(points, ResolutionHourly)
	assert.Len(t, out, 2)
}

func TestFilterResolution_Daily(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []model.ChartPoint{
		point(base),
		point(base.Add(12 * time.Hour)),
		point(base.Add(25 * time.Hour)), // next day bucket
	}

	out := filterResolution(points, ResolutionDaily)
	assert.Len(t, out, 2)
}
