package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rental-markup/internal/model"
)

func sampleEvent(typ string) model.MarkupEvent {
	return model.MarkupEvent{
		Type:         typ,
		MarkupID:     17,
		OwnerUserID:  4,
		MarkableType: model.MarkableProperty,
		MarkableID:   42,
		FinalAmount:  decimal.RequireFromString("1100"),
		OccurredAt:   "2026-01-02T03:04:05Z",
	}
}

func TestFormatLine(t *testing.T) {
	assert.Equal(t,
		"[2026-01-02T03:04:05Z] Markup applied | markup_id=17 | owner_user_id=4 | item=property/42 | final=1100.00\n",
		FormatLine(sampleEvent(model.EventMarkupApplied)))
	assert.Contains(t, FormatLine(sampleEvent(model.EventMarkupRemoved)), "Markup removed")
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"markup.exploded"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestHandleMessageAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	for _, typ := range []string{model.EventMarkupApplied, model.EventMarkupRemoved} {
		body, err := Encode(sampleEvent(typ))
		require.NoError(t, err)
		require.NoError(t, HandleMessage(dir, body))
	}
	raw, err := os.ReadFile(filepath.Join(dir, "markup.log"))
	require.NoError(t, err)
	assert.Equal(t,
		FormatLine(sampleEvent(model.EventMarkupApplied))+FormatLine(sampleEvent(model.EventMarkupRemoved)),
		string(raw))
}
