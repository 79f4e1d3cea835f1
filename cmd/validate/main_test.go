package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurlina/remote-sensing-2-hail-events/internal/domain"
)

const goodLog = `Radar Image Timestamp,Latitude,Longitude,DBZH
2024-01-15 14:30:00,55.018,10.062,70
2024-01-15 14:30:00,55.018,10.094,65
2024-01-15 14:45:00,55.018,10.062,79.5
`

func TestValidateStructure_Good(t *testing.T) {
	p, rows := validateStructure(strings.NewReader(goodLog))
	assert.True(t, p.passed(), p.errors)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[0].line)
	assert.Equal(t, 79.5, rows[2].event.ReflectivityDBZ)
}

func TestValidateStructure_Problems(t *testing.T) {
	log := `Radar Image Timestamp,Latitude,Longitude,DBZH
2024-01-15 14:30:00,55.018,10.062,70
Radar Image Timestamp,Latitude,Longitude,DBZH
2024-01-15 14:30,55.018,10.062,70
2024-01-15 14:30:00,north,10.062,70
2024-01-15 14:30:00,55.018,10.062
`
	p, rows := validateStructure(strings.NewReader(log))
	assert.Len(t, rows, 1)
	require.Len(t, p.errors, 4)
	assert.Contains(t, p.errors[0], "line 3: repeated header")
	assert.Contains(t, p.errors[1], "line 4: timestamp")
	assert.Contains(t, p.errors[2], "line 5: Latitude")
	assert.Contains(t, p.errors[3], "line 6: 3 fields")
}

func TestValidateStructure_MissingHeader(t *testing.T) {
	p, rows := validateStructure(strings.NewReader("2024-01-15 14:30:00,55.018,10.062,70\n"))
	assert.Len(t, rows, 1)
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "line 1: header")

	p, _ = validateStructure(strings.NewReader(""))
	assert.Equal(t, []string{"log is empty"}, p.errors)
}

func TestValidateThresholds(t *testing.T) {
	rows := []row{
		{line: 2, event: domain.HailEvent{ReflectivityDBZ: 65}},
		{line: 3, event: domain.HailEvent{ReflectivityDBZ: 64.5}},
		{line: 4, event: domain.HailEvent{ReflectivityDBZ: 80}},
	}
	p := validateThresholds(rows, domain.DefaultThresholds())
	require.Len(t, p.errors, 2)
	assert.Contains(t, p.errors[0], "line 3")
	assert.Contains(t, p.errors[1], "line 4")
}

func TestValidateDuplicates(t *testing.T) {
	_, rows := validateStructure(strings.NewReader(goodLog + "2024-01-15 14:30:00,55.018,10.094,66\n"))
	p := validateDuplicates(rows)
	assert.Equal(t, []string{"line 5 duplicates line 3 (2024-01-15 14:30:00)"}, p.errors)
}
