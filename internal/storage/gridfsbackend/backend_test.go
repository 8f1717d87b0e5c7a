package gridfsbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sensorvault/upload-gateway/internal/uploadable"
)

func TestLocationDocForOmitsAbsentLocation(t *testing.T) {
	assert.Nil(t, locationDocFor(0, uploadable.GeoLocation{}))
}

func TestLocationDocForBuildsGeoJSONPoint(t *testing.T) {
	loc := uploadable.GeoLocation{Latitude: 60.1, Longitude: 24.9, TimestampMillis: 1000}

	doc := locationDocFor(2, loc)
	if assert.NotNil(t, doc) {
		assert.Equal(t, "Point", doc.Location.Type)
		assert.Equal(t, []float64{24.9, 60.1}, doc.Location.Coordinates)
		assert.Equal(t, int64(1000), doc.Timestamp)
	}
}
