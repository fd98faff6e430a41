package standardid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentify_PartColonYear(t *testing.T) {
	id, ok := Identify("ISO 10993-18:2020 Biological evaluation of medical devices")
	require.True(t, ok)
	require.NotNil(t, id.Part)
	assert.Equal(t, 10993, id.Series)
	assert.Equal(t, 18, *id.Part)
	assert.Equal(t, 2020, id.Year)
}

func TestIdentify_PartParenYear(t *testing.T) {
	id, ok := Identify("ISO 10993-18 (2005) Biological evaluation")
	require.True(t, ok)
	require.NotNil(t, id.Part)
	assert.Equal(t, 18, *id.Part)
	assert.Equal(t, 2005, id.Year)
}

func TestIdentify_NoPart(t *testing.T) {
	id, ok := Identify("ISO 13485:2016 Quality management systems")
	require.True(t, ok)
	assert.Nil(t, id.Part)
	assert.Equal(t, 13485, id.Series)
	assert.Equal(t, 2016, id.Year)
}

func TestIdentify_NoMatch(t *testing.T) {
	_, ok := Identify("Some unrelated internal memo")
	assert.False(t, ok)
}

func TestClassify_VersionDiff(t *testing.T) {
	a, _ := Identify("ISO 10993-18:2005")
	b, _ := Identify("ISO 10993-18:2020")
	d := Classify(&a, &b)
	assert.Equal(t, ModeVersionDiff, d.Mode)
}

func TestClassify_CrossReference(t *testing.T) {
	a, _ := Identify("ISO 10993-18:2020")
	b, _ := Identify("ISO 10993-17:2023")
	d := Classify(&a, &b)
	assert.Equal(t, ModeCrossReference, d.Mode)
}

func TestClassify_IncompatibleDifferentSeries(t *testing.T) {
	a, _ := Identify("ISO 10993-18:2020")
	b, _ := Identify("ISO 13485:2016")
	d := Classify(&a, &b)
	assert.Equal(t, ModeIncompatible, d.Mode)
}

func TestClassify_IncompatibleSameDocument(t *testing.T) {
	a, _ := Identify("ISO 10993-18:2020")
	b, _ := Identify("ISO 10993-18:2020")
	d := Classify(&a, &b)
	assert.Equal(t, ModeIncompatible, d.Mode)
}

func TestClassify_IncompatibleMissingIdentity(t *testing.T) {
	a, _ := Identify("ISO 10993-18:2020")
	d := Classify(&a, nil)
	assert.Equal(t, ModeIncompatible, d.Mode)
}
