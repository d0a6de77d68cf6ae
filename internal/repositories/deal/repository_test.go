package deal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func fixtureDeal() *models.Deal {
	return &models.Deal{
		Source:      models.RecordSourceImported,
		SourceKey:   "feed-1042",
		Name:        "Acme Corp",
		AnnouncedAt: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		SizeMUSD:    120,
		Type:        "Acquisition",
		Category:    "Gaming",
		Data:        json.RawMessage(`{"region":"EMEA"}`),
		SyncID:      "sync-1",
	}
}

func TestContentFingerprintIgnoresSyncBookkeeping(t *testing.T) {
	a := fixtureDeal()
	b := fixtureDeal()
	b.SyncID = "sync-2"
	b.ID = "some-row-id"
	b.CreatedAt = time.Now()

	assert.Equal(t, contentFingerprint(a), contentFingerprint(b))
}

func TestContentFingerprintTracksContent(t *testing.T) {
	base := contentFingerprint(fixtureDeal())

	tests := []struct {
		name   string
		mutate func(*models.Deal)
	}{
		{"name", func(d *models.Deal) { d.Name = "Acme Holdings" }},
		{"announced date", func(d *models.Deal) { d.AnnouncedAt = d.AnnouncedAt.AddDate(0, 0, 1) }},
		{"size", func(d *models.Deal) { d.SizeMUSD = 125 }},
		{"type", func(d *models.Deal) { d.Type = "Merger" }},
		{"category", func(d *models.Deal) { d.Category = "Fintech" }},
		{"payload", func(d *models.Deal) { d.Data = json.RawMessage(`{"region":"APAC"}`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fixtureDeal()
			tt.mutate(d)
			assert.NotEqual(t, base, contentFingerprint(d))
		})
	}
}

func TestContentFingerprintNormalizesTimezone(t *testing.T) {
	a := fixtureDeal()
	b := fixtureDeal()
	b.AnnouncedAt = a.AnnouncedAt.In(time.FixedZone("CET", 3600))

	assert.Equal(t, contentFingerprint(a), contentFingerprint(b))
}
