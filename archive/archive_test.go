package archive

import (
	"errors"
	"testing"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

func newTestArchiver(t *testing.T) *Archiver {
	t.Helper()
	a, err := NewWithFactory(Config{Dataset: "warden-runs", Project: "projA"}, lode.NewMemoryFactory())
	if err != nil {
		t.Fatalf("NewWithFactory: %v", err)
	}
	return a
}

func finalizedRun(t *testing.T) (*runledger.Ledger, string) {
	t.Helper()
	ledger := runledger.New(t.TempDir())
	meta, err := ledger.Create("tdd", "implement", nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if _, err := ledger.WriteCapsule(meta.RunID, runledger.Capsule{
		Outcome:  types.RunStatusOK,
		Pointers: []string{"pkg/parser.go"},
	}); err != nil {
		t.Fatalf("write capsule: %v", err)
	}
	if _, err := ledger.WriteManifest(meta.RunID, nil, nil); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := ledger.Finalize(meta.RunID, types.RunStatusOK); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return ledger, meta.RunID
}

func TestArchiveRun(t *testing.T) {
	a := newTestArchiver(t)
	ledger, runID := finalizedRun(t)

	if err := a.ArchiveRun(t.Context(), ledger, runID); err != nil {
		t.Fatalf("ArchiveRun: %v", err)
	}
	// Success: run, capsule, manifest, and event records written.
}

func TestArchiveRun_RefusesInProgress(t *testing.T) {
	a := newTestArchiver(t)
	ledger := runledger.New(t.TempDir())
	meta, err := ledger.Create("tdd", "implement", nil)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := a.ArchiveRun(t.Context(), ledger, meta.RunID); err == nil {
		t.Error("expected refusal to archive an in-progress run")
	}
}

func TestArchiveRun_UnknownRun(t *testing.T) {
	a := newTestArchiver(t)
	ledger := runledger.New(t.TempDir())

	err := a.ArchiveRun(t.Context(), ledger, "run-missing")
	if !errors.Is(err, runledger.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{Dataset: "d", Project: "p"}, false},
		{"missing dataset", Config{Project: "p"}, true},
		{"missing project", Config{Dataset: "d"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseS3Path(t *testing.T) {
	tests := []struct {
		path   string
		bucket string
		prefix string
	}{
		{"my-bucket", "my-bucket", ""},
		{"my-bucket/archive/runs", "my-bucket", "archive/runs"},
	}
	for _, tt := range tests {
		bucket, prefix := ParseS3Path(tt.path)
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)",
				tt.path, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"open /x: permission denied", ErrPermissionDenied},
		{"stat /x: no such file or directory", ErrNotFound},
		{"write /x: no space left on device", ErrDiskFull},
		{"operation error S3: PutObject, SlowDown", ErrThrottled},
		{"NoCredentialProviders: no valid providers", ErrAuth},
		{"dial tcp 10.0.0.1:443: connection refused", ErrNetwork},
	}
	for _, tt := range tests {
		wrapped := wrapStorageError(errors.New(tt.msg), "write", "x")
		if !errors.Is(wrapped, tt.want) {
			t.Errorf("classify(%q) != %v (got %v)", tt.msg, tt.want, wrapped)
		}
	}
}
