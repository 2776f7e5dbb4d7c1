package coordinator_test

import (
	"context"
	"errors"
	"math/big"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agritrace/provenance-anchor/internal/adapter"
	"github.com/agritrace/provenance-anchor/internal/anchor"
	"github.com/agritrace/provenance-anchor/internal/coordinator"
	"github.com/agritrace/provenance-anchor/internal/digest"
	"github.com/agritrace/provenance-anchor/internal/domain"
	"github.com/agritrace/provenance-anchor/internal/logger"
	"github.com/agritrace/provenance-anchor/internal/store"
	"github.com/agritrace/provenance-anchor/internal/store/schema"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// fakeAnchorer hands out deterministic anchors and replays stored envelopes
type fakeAnchorer struct {
	anchored   map[string]*anchor.Envelope
	anchorErr  error
	recoverErr error
	nextNonce  uint64
	statusFor  map[string]domain.AnchorStatus
	noGasPrice bool
}

func newFakeAnchorer() *fakeAnchorer {
	return &fakeAnchorer{
		anchored:  make(map[string]*anchor.Envelope),
		statusFor: make(map[string]domain.AnchorStatus),
	}
}

func (f *fakeAnchorer) Anchor(ctx context.Context, d domain.Digest, metadata map[string]string) (*anchor.Result, error) {
	if f.anchorErr != nil {
		return nil, f.anchorErr
	}
	f.nextNonce++
	txHash := "0x" + strings.Repeat("0", 64-len(strconv.FormatUint(f.nextNonce, 16))) + strconv.FormatUint(f.nextNonce, 16)
	envelope := &anchor.Envelope{
		Version:   anchor.EnvelopeVersion,
		Timestamp: time.Now().UTC(),
		Hash:      d,
		Metadata:  metadata,
	}
	f.anchored[txHash] = envelope
	result := &anchor.Result{
		TxHash:      txHash,
		ChainID:     "1337",
		BlockNumber: 100 + f.nextNonce,
		BlockHash:   "0x" + strings.Repeat("bb", 32),
		From:        "0xsigner",
		To:          "0xsigner",
		GasUsed:     21000,
		Status:      domain.AnchorStatusConfirmed,
		Envelope:    envelope,
	}
	if !f.noGasPrice {
		result.EffectiveGasPrice = big.NewInt(1)
	}
	return result, nil
}

func (f *fakeAnchorer) Recover(ctx context.Context, txHash string) (*anchor.Recovery, error) {
	if f.recoverErr != nil {
		return nil, f.recoverErr
	}
	envelope, ok := f.anchored[txHash]
	if !ok {
		return nil, domain.ErrAnchorNotFound
	}
	status, ok := f.statusFor[txHash]
	if !ok {
		status = domain.AnchorStatusConfirmed
	}
	return &anchor.Recovery{
		TxHash:      txHash,
		BlockNumber: 101,
		BlockHash:   "0x" + strings.Repeat("bb", 32),
		From:        "0xsigner",
		To:          "0xsigner",
		GasUsed:     21000,
		Status:      status,
		Envelope:    envelope,
	}, nil
}

func (f *fakeAnchorer) Balance(ctx context.Context, address string) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (f *fakeAnchorer) NetworkInfo(ctx context.Context) (*anchor.Network, error) {
	return &anchor.Network{ChainID: big.NewInt(1337)}, nil
}

func (f *fakeAnchorer) Close() {}

// fakeStore is an in-memory Store
type fakeStore struct {
	producers     map[string]string
	records       []*schema.ProvenanceRecord
	attachments   map[uint64][]schema.FileAttachment
	anchors       map[string]*schema.LedgerAnchor
	logs          map[uint64][]schema.VerificationLog
	nextID        uint64
	persistErr    error
	logErr        error
	statusUpdates map[string]domain.AnchorStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		producers:     make(map[string]string),
		attachments:   make(map[uint64][]schema.FileAttachment),
		anchors:       make(map[string]*schema.LedgerAnchor),
		logs:          make(map[uint64][]schema.VerificationLog),
		statusUpdates: make(map[string]domain.AnchorStatus),
	}
}

func (f *fakeStore) EnsureProducerExists(ctx context.Context, producerID string, name string) error {
	if _, ok := f.producers[producerID]; !ok {
		f.producers[producerID] = name
	}
	return nil
}

func (f *fakeStore) PersistRecord(ctx context.Context, record *schema.ProvenanceRecord, anchorRow *schema.LedgerAnchor, files []schema.FileAttachment) (uint64, error) {
	if f.persistErr != nil {
		return 0, f.persistErr
	}
	f.nextID++
	record.ID = f.nextID
	f.records = append(f.records, record)
	for i := range files {
		files[i].RecordID = record.ID
	}
	f.attachments[record.ID] = files
	f.anchors[anchorRow.TxHash] = anchorRow
	return record.ID, nil
}

func (f *fakeStore) LoadRecord(ctx context.Context, identifier string) (*store.RecordBundle, error) {
	for _, r := range f.records {
		matches := strconv.FormatUint(r.ID, 10) == identifier ||
			r.DataDigest == identifier ||
			(r.CombinedDigest != nil && *r.CombinedDigest == identifier) ||
			(r.TxHash != nil && *r.TxHash == identifier)
		if !matches {
			continue
		}
		bundle := &store.RecordBundle{
			Record:           *r,
			Attachments:      f.attachments[r.ID],
			VerificationLogs: f.logs[r.ID],
		}
		if r.TxHash != nil {
			bundle.Anchor = f.anchors[*r.TxHash]
		}
		return bundle, nil
	}
	return nil, &domain.NotFoundError{Identifier: identifier}
}

func (f *fakeStore) LogVerification(ctx context.Context, row *schema.VerificationLog) error {
	if f.logErr != nil {
		return f.logErr
	}
	f.logs[row.RecordID] = append(f.logs[row.RecordID], *row)
	return nil
}

func (f *fakeStore) UpdateAnchorStatus(ctx context.Context, txHash string, status domain.AnchorStatus, blockNumber *uint64) error {
	f.statusUpdates[txHash] = status
	return nil
}

func (f *fakeStore) UpdateRecordStatus(ctx context.Context, recordID uint64, status domain.RecordStatus) error {
	for _, r := range f.records {
		if r.ID == recordID {
			r.Status = status
			return nil
		}
	}
	return &domain.NotFoundError{Identifier: strconv.FormatUint(recordID, 10)}
}

func (f *fakeStore) SoftDeleteAttachment(ctx context.Context, attachmentID uint64) error {
	return nil
}

func (f *fakeStore) HealthCheck(ctx context.Context) error {
	return nil
}

func testRecord() *domain.ProvenanceRecord {
	return &domain.ProvenanceRecord{
		ProducerID: "farm-001",
		Product:    "Arabica coffee",
		Location:   "Huila, Colombia",
		EventDate:  time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC),
		Quantity:   120.5,
		Unit:       "kg",
	}
}

func newTestCoordinator() (coordinator.Coordinator, *fakeAnchorer, *fakeStore) {
	anchorer := newFakeAnchorer()
	st := newFakeStore()
	coord := coordinator.New(digest.NewEngine(adapter.NewJCS()), anchorer, st)
	return coord, anchorer, st
}

func TestCoordinator_Store(t *testing.T) {
	coord, anchorer, st := newTestCoordinator()

	result, err := coord.Store(context.Background(), &coordinator.StoreInput{
		Record:       testRecord(),
		ProducerName: "Finca El Paraiso",
		Metadata:     map[string]string{"batch": "2025-06"},
	})
	require.NoError(t, err)

	assert.NotZero(t, result.RecordID)
	assert.True(t, result.DataDigest.Valid())
	assert.Equal(t, result.DataDigest, result.CombinedDigest, "no files means combined equals record digest")
	assert.Equal(t, domain.AnchorStatusConfirmed, result.AnchorStatus)

	// Producer provisioned, envelope carries the digest plus metadata
	assert.Equal(t, "Finca El Paraiso", st.producers["farm-001"])
	envelope := anchorer.anchored[result.TxHash]
	require.NotNil(t, envelope)
	assert.Equal(t, result.CombinedDigest, envelope.Hash)
	assert.Equal(t, "farm-001", envelope.Metadata["producer_id"])
	assert.Equal(t, "2025-06", envelope.Metadata["batch"])
}

func TestCoordinator_Store_WithFiles(t *testing.T) {
	coord, _, st := newTestCoordinator()

	result, err := coord.Store(context.Background(), &coordinator.StoreInput{
		Record: testRecord(),
		Files: []domain.FileUpload{
			{Name: "certificate.pdf", Data: []byte("certificate bytes")},
		},
	})
	require.NoError(t, err)

	assert.NotEqual(t, result.DataDigest, result.CombinedDigest)

	attachments := st.attachments[result.RecordID]
	require.Len(t, attachments, 1)
	assert.Equal(t, "certificate.pdf", attachments[0].OriginalName)
	assert.NotEmpty(t, attachments[0].StoredName)
	assert.NotEmpty(t, attachments[0].ContentType, "content type should be sniffed")
}

func TestCoordinator_Store_AnchorGasPriceOptional(t *testing.T) {
	coord, anchorer, st := newTestCoordinator()
	anchorer.noGasPrice = true

	result, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	// A receipt without a gas price maps to a NULL column, never an empty string
	anchorRow := st.anchors[result.TxHash]
	require.NotNil(t, anchorRow)
	assert.Nil(t, anchorRow.EffectiveGasPrice)

	anchorer.noGasPrice = false
	record := testRecord()
	record.Notes = "second batch"
	result, err = coord.Store(context.Background(), &coordinator.StoreInput{Record: record})
	require.NoError(t, err)

	anchorRow = st.anchors[result.TxHash]
	require.NotNil(t, anchorRow)
	require.NotNil(t, anchorRow.EffectiveGasPrice)
	assert.Equal(t, "1", *anchorRow.EffectiveGasPrice)
}

func TestCoordinator_Store_InvalidRecord(t *testing.T) {
	coord, anchorer, _ := newTestCoordinator()

	record := testRecord()
	record.Quantity = -1

	_, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: record})

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, anchorer.anchored, "nothing should reach the ledger")
}

func TestCoordinator_Store_PersistFailureCarriesTxHash(t *testing.T) {
	coord, anchorer, st := newTestCoordinator()
	st.persistErr = errors.New("connection reset")

	_, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})

	var persistenceErr *domain.PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	assert.NotEmpty(t, persistenceErr.OrphanedTxHash)
	assert.Contains(t, anchorer.anchored, persistenceErr.OrphanedTxHash,
		"the orphaned hash must point at the submitted anchor")
}

func TestCoordinator_Verify_Verified(t *testing.T) {
	coord, _, st := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	result, err := coord.Verify(context.Background(), &coordinator.VerifyInput{
		Identifier: strconv.FormatUint(stored.RecordID, 10),
		Fresh:      testRecord(),
		Caller:     domain.CallerInfo{IP: "203.0.113.9", UserAgent: "curl/8"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeVerified, result.Outcome)
	assert.Equal(t, result.StoredDigest, result.CurrentDigest)
	assert.NotEmpty(t, result.RequestID)

	logs := st.logs[stored.RecordID]
	require.Len(t, logs, 1)
	assert.True(t, logs[0].IsValid)
	assert.Equal(t, domain.MethodHashComparison, logs[0].Method)
	assert.Equal(t, "203.0.113.9", logs[0].CallerIP)
}

func TestCoordinator_Verify_Tampered(t *testing.T) {
	coord, _, st := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	tampered := testRecord()
	tampered.Quantity = 999

	result, err := coord.Verify(context.Background(), &coordinator.VerifyInput{
		Identifier: strconv.FormatUint(stored.RecordID, 10),
		Fresh:      tampered,
	})
	require.NoError(t, err, "a mismatch is a verdict, not an error")

	assert.Equal(t, domain.OutcomeTampered, result.Outcome)
	assert.NotEqual(t, result.StoredDigest, result.CurrentDigest)

	logs := st.logs[stored.RecordID]
	require.Len(t, logs, 1)
	assert.False(t, logs[0].IsValid)
}

func TestCoordinator_Verify_RepeatedAttemptsAllLogged(t *testing.T) {
	coord, _, st := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	tampered := testRecord()
	tampered.Notes = "rewritten"

	for i := 0; i < 3; i++ {
		_, err := coord.Verify(context.Background(), &coordinator.VerifyInput{
			Identifier: strconv.FormatUint(stored.RecordID, 10),
			Fresh:      tampered,
		})
		require.NoError(t, err)
	}

	logs := st.logs[stored.RecordID]
	assert.Len(t, logs, 3, "identical failed attempts are never deduplicated")
	seen := make(map[string]bool)
	for _, l := range logs {
		seen[l.RequestID] = true
	}
	assert.Len(t, seen, 3, "every attempt gets its own request ID")
}

func TestCoordinator_Verify_VersionDefaultsToStored(t *testing.T) {
	coord, _, _ := newTestCoordinator()

	record := testRecord()
	record.Version = 3
	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: record})
	require.NoError(t, err)

	fresh := testRecord()
	fresh.Version = 0

	result, err := coord.Verify(context.Background(), &coordinator.VerifyInput{
		Identifier: strconv.FormatUint(stored.RecordID, 10),
		Fresh:      fresh,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeVerified, result.Outcome)
}

func TestCoordinator_Verify_LedgerCrossCheck(t *testing.T) {
	coord, _, st := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	result, err := coord.Verify(context.Background(), &coordinator.VerifyInput{
		Identifier:      stored.TxHash,
		Fresh:           testRecord(),
		WithLedgerCheck: true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeVerified, result.Outcome)
	require.NotNil(t, result.LedgerDigest)
	assert.Equal(t, stored.CombinedDigest, *result.LedgerDigest)

	logs := st.logs[stored.RecordID]
	require.Len(t, logs, 1)
	assert.Equal(t, domain.MethodLedgerCrossCheck, logs[0].Method)
}

func TestCoordinator_Verify_AuditOutageDoesNotBlockVerdict(t *testing.T) {
	coord, _, st := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	st.logErr = errors.New("audit table unavailable")

	result, err := coord.Verify(context.Background(), &coordinator.VerifyInput{
		Identifier: strconv.FormatUint(stored.RecordID, 10),
		Fresh:      testRecord(),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeVerified, result.Outcome)
}

func TestCoordinator_Verify_NotFound(t *testing.T) {
	coord, _, _ := newTestCoordinator()

	_, err := coord.Verify(context.Background(), &coordinator.VerifyInput{
		Identifier: "12345",
		Fresh:      testRecord(),
	})
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestCoordinator_Retrieve_ByDigestAndTxHash(t *testing.T) {
	coord, _, _ := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	for _, identifier := range []string{
		strconv.FormatUint(stored.RecordID, 10),
		stored.DataDigest.String(),
		stored.TxHash,
	} {
		result, err := coord.Retrieve(context.Background(), identifier, false)
		require.NoError(t, err, "identifier %q", identifier)
		assert.Equal(t, stored.RecordID, result.Bundle.Record.ID)
		assert.Nil(t, result.Ledger)
	}
}

func TestCoordinator_Retrieve_WithLedger(t *testing.T) {
	coord, _, _ := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	result, err := coord.Retrieve(context.Background(), stored.TxHash, true)
	require.NoError(t, err)

	require.NotNil(t, result.Ledger)
	require.NotNil(t, result.Ledger.Envelope)
	assert.Equal(t, stored.CombinedDigest, result.Ledger.Envelope.Hash)
}

func TestCoordinator_Retrieve_DegradesWhenLedgerUnreachable(t *testing.T) {
	coord, anchorer, _ := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	anchorer.recoverErr = domain.NewLedgerError(domain.LedgerCauseNetwork, errors.New("rpc down"))

	result, err := coord.Retrieve(context.Background(), stored.TxHash, true)
	require.NoError(t, err, "a broken RPC must not hide a valid local record")
	assert.NotNil(t, result.Bundle)
	assert.Nil(t, result.Ledger)
}

func TestCoordinator_Reconfirm(t *testing.T) {
	coord, anchorer, st := newTestCoordinator()

	stored, err := coord.Store(context.Background(), &coordinator.StoreInput{Record: testRecord()})
	require.NoError(t, err)

	anchorer.statusFor[stored.TxHash] = domain.AnchorStatusReverted

	recovery, err := coord.Reconfirm(context.Background(), stored.TxHash)
	require.NoError(t, err)

	assert.Equal(t, domain.AnchorStatusReverted, recovery.Status)
	assert.Equal(t, domain.AnchorStatusReverted, st.statusUpdates[stored.TxHash])
}

func TestCoordinator_Reconfirm_NotFound(t *testing.T) {
	coord, _, _ := newTestCoordinator()

	_, err := coord.Reconfirm(context.Background(), "0x"+strings.Repeat("ee", 32))
	assert.ErrorIs(t, err, domain.ErrAnchorNotFound)
}
