package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Guizzs26/go-imei-sync/internal/models"
)

func TestValidIMEI(t *testing.T) {
	assert.True(t, ValidIMEI("123456789012345"))
	assert.True(t, ValidIMEI(" 123456789012345 "))
	assert.False(t, ValidIMEI("12345"))
	assert.False(t, ValidIMEI("12345678901234A"))
	assert.False(t, ValidIMEI("１２３４５６７８９０１２３４５"))
}

func TestNonIMEI(t *testing.T) {
	got := NonIMEI([]models.ExtractedRecord{
		{Identifier: "123456789012345"},
		{Identifier: "SN-1"},
	})
	assert.Equal(t, []string{"SN-1"}, got)
}
