package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/sqlpipe/internal/csvcodec"
	"github.com/JonMunkholm/sqlpipe/internal/pool/pooltest"
)

func TestLatch(t *testing.T) {
	var l latch
	first := errors.New("first")

	if !l.settle(first) {
		t.Fatal("first settle() = false, want true")
	}
	if l.settle(nil) {
		t.Error("second settle() = true, want false")
	}
	if l.settle(errors.New("third")) {
		t.Error("third settle() = true, want false")
	}
	if l.err != first {
		t.Errorf("err = %v, want %v", l.err, first)
	}
}

func TestLatch_ConcurrentSettle(t *testing.T) {
	var l latch
	var wins sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 100; i++ {
		wins.Add(1)
		go func() {
			defer wins.Done()
			if l.settle(nil) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wins.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestExportToFile(t *testing.T) {
	rows := make([][]any, 23)
	for i := range rows {
		rows[i] = []any{int64(i + 1), "name " + string(rune('a'+i)), nil}
	}
	svc, fake := newTestService(func(string, []any) pooltest.Result {
		return pooltest.Result{Columns: []string{"id", "name", "note"}, Rows: rows}
	})

	for _, name := range []string{"out.csv", "out.csv.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			res, err := svc.ExportToFile(context.Background(), path, "SELECT id, name, note FROM t WHERE id > $1", 0)
			if err != nil {
				t.Fatalf("ExportToFile() error = %v", err)
			}
			if res.Rows != int64(len(rows)) {
				t.Errorf("Rows = %d, want %d", res.Rows, len(rows))
			}
			if res.ID == "" {
				t.Error("ID is empty")
			}

			got, err := csvcodec.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if strings.Join(got[0], ",") != "id,name,note" {
				t.Errorf("header = %v", got[0])
			}
			if len(got)-1 != len(rows) {
				t.Fatalf("data rows = %d, want %d", len(got)-1, len(rows))
			}
			if got[1][0] != "1" || got[1][1] != "name a" || got[1][2] != "" {
				t.Errorf("first row = %q", got[1])
			}
			if fake.Acquired() != 0 {
				t.Errorf("Acquired() = %d, want 0", fake.Acquired())
			}
		})
	}
}

func TestExportToFile_HeaderIsQuoted(t *testing.T) {
	svc, _ := newTestService(func(string, []any) pooltest.Result {
		return pooltest.Result{Columns: []string{"id", "full name"}, Rows: [][]any{{1, "x"}}}
	})
	path := filepath.Join(t.TempDir(), "out.csv")

	if _, err := svc.ExportToFile(context.Background(), path, "SELECT 1"); err != nil {
		t.Fatalf("ExportToFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if want := "\"id\",\"full name\"\n1,\"x\"\n"; string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}

func TestExportToFile_QueryError(t *testing.T) {
	svc, fake := newTestService(func(string, []any) pooltest.Result {
		return pooltest.Result{Err: errors.New(`relation "missing" does not exist`)}
	})
	path := filepath.Join(t.TempDir(), "out.csv")

	_, err := svc.ExportToFile(context.Background(), path, "SELECT * FROM missing")

	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("ExportToFile() error = %v, want *StreamError", err)
	}
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Errorf("error does not wrap *QueryError: %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("partial file left behind")
	}
	if fake.Acquired() != 0 {
		t.Errorf("Acquired() = %d, want 0", fake.Acquired())
	}
}

func TestExportToFile_RowsErrorMidStream(t *testing.T) {
	svc, _ := newTestService(func(string, []any) pooltest.Result {
		return pooltest.Result{
			Columns: []string{"a"},
			Rows:    [][]any{{1}, {2}, {3}},
			RowsErr: errors.New("server closed the connection unexpectedly"),
		}
	})
	path := filepath.Join(t.TempDir(), "out.csv")

	_, err := svc.ExportToFile(context.Background(), path, "SELECT a FROM t")

	var se *StreamError
	if !errors.As(err, &se) || se.Op != "read" {
		t.Fatalf("ExportToFile() error = %v, want read *StreamError", err)
	}
}

func TestExportToFile_BadPath(t *testing.T) {
	svc, fake := newTestService(nil)
	path := filepath.Join(t.TempDir(), "no", "such", "dir", "out.csv")

	_, err := svc.ExportToFile(context.Background(), path, "SELECT 1")

	var se *StreamError
	if !errors.As(err, &se) || se.Op != "create" {
		t.Fatalf("ExportToFile() error = %v, want create *StreamError", err)
	}
	if len(fake.Statements()) != 0 {
		t.Error("query issued although the file could not be created")
	}
}

// failingSink accepts a number of bytes and then fails every write.
type failingSink struct {
	mu     sync.Mutex
	budget int
	closed int
}

var errDiskFull = errors.New("no space left on device")

func (f *failingSink) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(p) > f.budget {
		return 0, errDiskFull
	}
	f.budget -= len(p)
	return len(p), nil
}

func (f *failingSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func TestExport_WriteFailureStopsProducer(t *testing.T) {
	// Enough rows to overflow the writer's buffer several times.
	rows := make([][]any, 5000)
	for i := range rows {
		rows[i] = []any{strings.Repeat("x", 64)}
	}
	svc, fake := newTestService(func(string, []any) pooltest.Result {
		return pooltest.Result{Columns: []string{"payload"}, Rows: rows}
	})

	sink := &failingSink{budget: 16}
	_, err := svc.export(context.Background(), sink, "mem.csv", "SELECT payload FROM t", nil)

	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("export() error = %v, want *StreamError", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("error does not wrap the write failure: %v", err)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
	if fake.Acquired() != 0 {
		t.Errorf("Acquired() = %d, want 0", fake.Acquired())
	}
}

func TestExport_CancelledContext(t *testing.T) {
	rows := make([][]any, 100)
	for i := range rows {
		rows[i] = []any{i}
	}
	svc, _ := newTestService(func(string, []any) pooltest.Result {
		return pooltest.Result{Columns: []string{"n"}, Rows: rows}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ExportToFile(ctx, filepath.Join(t.TempDir(), "out.csv"), "SELECT n FROM t")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ExportToFile() error = %v, want context.Canceled", err)
	}
}
