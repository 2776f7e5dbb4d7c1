package digest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agritrace/provenance-anchor/internal/adapter"
	"github.com/agritrace/provenance-anchor/internal/domain"
)

func testRecord() *domain.ProvenanceRecord {
	return &domain.ProvenanceRecord{
		ProducerID:   "farm-001",
		Product:      "Arabica coffee",
		Location:     "Huila, Colombia",
		EventDate:    time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC),
		Quantity:     120.5,
		Unit:         "kg",
		QualityGrade: "AA",
		Notes:        "first harvest",
		Version:      1,
	}
}

func TestEngine_Digest_Deterministic(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	first, err := engine.Digest(testRecord())
	require.NoError(t, err)
	second, err := engine.Digest(testRecord())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, first.Valid())
}

func TestEngine_Digest_TimezoneNormalized(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	utc := testRecord()
	local := testRecord()
	local.EventDate = utc.EventDate.In(time.FixedZone("UTC+5", 5*3600))

	utcDigest, err := engine.Digest(utc)
	require.NoError(t, err)
	localDigest, err := engine.Digest(local)
	require.NoError(t, err)

	assert.Equal(t, utcDigest, localDigest)
}

func TestEngine_Digest_SensitiveToEveryField(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	baseline, err := engine.Digest(testRecord())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*domain.ProvenanceRecord)
	}{
		{
			name:   "producer changed",
			mutate: func(r *domain.ProvenanceRecord) { r.ProducerID = "farm-002" },
		},
		{
			name:   "product changed",
			mutate: func(r *domain.ProvenanceRecord) { r.Product = "Robusta coffee" },
		},
		{
			name:   "location changed",
			mutate: func(r *domain.ProvenanceRecord) { r.Location = "Nairobi, Kenya" },
		},
		{
			name:   "event date shifted one second",
			mutate: func(r *domain.ProvenanceRecord) { r.EventDate = r.EventDate.Add(time.Second) },
		},
		{
			name:   "quantity changed",
			mutate: func(r *domain.ProvenanceRecord) { r.Quantity = 120.6 },
		},
		{
			name:   "unit changed",
			mutate: func(r *domain.ProvenanceRecord) { r.Unit = "lb" },
		},
		{
			name:   "quality grade changed",
			mutate: func(r *domain.ProvenanceRecord) { r.QualityGrade = "AB" },
		},
		{
			name:   "notes changed",
			mutate: func(r *domain.ProvenanceRecord) { r.Notes = "second harvest" },
		},
		{
			name:   "version bumped",
			mutate: func(r *domain.ProvenanceRecord) { r.Version = 2 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := testRecord()
			tt.mutate(record)

			digest, err := engine.Digest(record)
			require.NoError(t, err)
			assert.NotEqual(t, baseline, digest)
		})
	}
}

func TestEngine_Digest_IgnoresMutableBookkeeping(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	baseline, err := engine.Digest(testRecord())
	require.NoError(t, err)

	record := testRecord()
	record.ID = 42
	record.Status = domain.RecordStatusRejected
	record.DataDigest = domain.Digest("0xdeadbeef")
	record.CreatedAt = time.Now()
	record.UpdatedAt = time.Now()

	digest, err := engine.Digest(record)
	require.NoError(t, err)
	assert.Equal(t, baseline, digest)
}

func TestEngine_Digest_RejectsInvalidRecord(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	record := testRecord()
	record.Quantity = 0

	_, err := engine.Digest(record)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestEngine_DigestCombined_NoFiles(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	result, err := engine.DigestCombined(testRecord(), nil)
	require.NoError(t, err)

	assert.Equal(t, result.RecordDigest, result.CombinedDigest)
	assert.Empty(t, result.FileDigests)
}

func TestEngine_DigestCombined_WithFiles(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	files := []domain.FileUpload{
		{Name: "certificate.pdf", Data: []byte("certificate bytes")},
		{Name: "photo.jpg", Data: []byte("photo bytes")},
	}

	result, err := engine.DigestCombined(testRecord(), files)
	require.NoError(t, err)

	require.Len(t, result.FileDigests, 2)
	assert.Equal(t, "certificate.pdf", result.FileDigests[0].Name)
	assert.Equal(t, int64(len("certificate bytes")), result.FileDigests[0].Size)
	assert.True(t, result.FileDigests[0].Digest.Valid())
	assert.NotEqual(t, result.RecordDigest, result.CombinedDigest)
	assert.True(t, result.CombinedDigest.Valid())
}

func TestEngine_DigestCombined_FileOrderMatters(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	a := domain.FileUpload{Name: "a", Data: []byte("aaa")}
	b := domain.FileUpload{Name: "b", Data: []byte("bbb")}

	forward, err := engine.DigestCombined(testRecord(), []domain.FileUpload{a, b})
	require.NoError(t, err)
	reversed, err := engine.DigestCombined(testRecord(), []domain.FileUpload{b, a})
	require.NoError(t, err)

	assert.NotEqual(t, forward.CombinedDigest, reversed.CombinedDigest)
}

func TestEngine_DigestCombined_FileContentMatters(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	original, err := engine.DigestCombined(testRecord(), []domain.FileUpload{
		{Name: "certificate.pdf", Data: []byte("original")},
	})
	require.NoError(t, err)

	tampered, err := engine.DigestCombined(testRecord(), []domain.FileUpload{
		{Name: "certificate.pdf", Data: []byte("tampered")},
	})
	require.NoError(t, err)

	assert.NotEqual(t, original.CombinedDigest, tampered.CombinedDigest)
}

func TestEngine_Verify(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	digest, err := engine.Digest(testRecord())
	require.NoError(t, err)

	ok, err := engine.Verify(testRecord(), digest)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := testRecord()
	tampered.Quantity = 999
	ok, err = engine.Verify(tampered, digest)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_HashBytes_KnownVector(t *testing.T) {
	engine := NewEngine(adapter.NewJCS())

	// Keccak-256 of the empty input
	assert.Equal(t,
		domain.Digest("0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"),
		engine.HashBytes(nil))
}
