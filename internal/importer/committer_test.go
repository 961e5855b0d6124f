package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

type backendCall struct {
	Op   string
	ID   int64
	Code string
	Name string
}

// fakeBackend 记录调用的内存后端
type fakeBackend struct {
	mu       sync.Mutex
	products []model.Product
	calls    []backendCall
	fail     map[string]error
	nextID   int64
	afterOp  func(n int)
	listErr  error
}

func (b *fakeBackend) ListProducts(ctx context.Context, inventoryID int64) ([]model.Product, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]model.Product(nil), b.products...), nil
}

func (b *fakeBackend) CreateProduct(ctx context.Context, rec *model.CanonicalRecord, inventoryID int64) (*model.Product, error) {
	return b.record("create", 0, rec)
}

func (b *fakeBackend) UpdateProduct(ctx context.Context, id int64, rec *model.CanonicalRecord, inventoryID int64) (*model.Product, error) {
	return b.record("update", id, rec)
}

func (b *fakeBackend) record(op string, id int64, rec *model.CanonicalRecord) (*model.Product, error) {
	b.mu.Lock()
	code := rec.CodeValue()
	b.calls = append(b.calls, backendCall{Op: op, ID: id, Code: code, Name: rec.NameValue()})
	n := len(b.calls)
	err := b.fail[code]
	if op == "create" && err == nil {
		b.nextID++
		id = 1000 + b.nextID
	}
	hook := b.afterOp
	b.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err != nil {
		return nil, err
	}
	return &model.Product{ID: id, Code: code, Name: rec.NameValue()}, nil
}

func (b *fakeBackend) callsFor(code string) []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backendCall
	for _, c := range b.calls {
		if c.Code == code {
			out = append(out, c)
		}
	}
	return out
}

func productRows(values ...[]string) []model.RowRecord {
	headers := []string{"Código", "Nombre"}
	rows := make([]model.RowRecord, 0, len(values))
	for i, v := range values {
		rows = append(rows, model.NewRowRecord(i+2, headers, v))
	}
	return rows
}

func productMapping() *model.ColumnMapping {
	m := model.NewColumnMapping()
	m.Set("Código", model.FieldCode)
	m.Set("Nombre", model.FieldName)
	return m
}

func TestDecide_Table(t *testing.T) {
	t.Parallel()

	cases := []struct {
		found bool
		mode  model.ImportMode
		want  Action
	}{
		{true, model.ModeCreateOnly, ActionSkip},
		{true, model.ModeUpdateOnly, ActionUpdate},
		{true, model.ModeCreateAndUpdate, ActionUpdate},
		{false, model.ModeCreateOnly, ActionCreate},
		{false, model.ModeUpdateOnly, ActionSkip},
		{false, model.ModeCreateAndUpdate, ActionCreate},
	}
	for _, tc := range cases {
		if got := Decide(tc.found, tc.mode); got != tc.want {
			t.Fatalf("Decide(found=%v, %s) = %s, want %s", tc.found, tc.mode, got, tc.want)
		}
	}
}

func TestCommitter_DecisionTableCounters(t *testing.T) {
	t.Parallel()

	existing := model.NewProductIndex([]model.Product{{ID: 7, Code: "A1"}})

	cases := []struct {
		mode      model.ImportMode
		code      string
		wantOp    string
		succeeded int
		skipped   int
	}{
		{model.ModeCreateOnly, "A1", "", 0, 1},
		{model.ModeUpdateOnly, "A1", "update", 1, 0},
		{model.ModeCreateAndUpdate, "A1", "update", 1, 0},
		{model.ModeCreateOnly, "B2", "create", 1, 0},
		{model.ModeUpdateOnly, "B2", "", 0, 1},
		{model.ModeCreateAndUpdate, "B2", "create", 1, 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprintf("%s_%s", tc.mode, tc.code), func(t *testing.T) {
			t.Parallel()

			be := &fakeBackend{}
			c := NewCommitter(be, nil, CommitOptions{Mode: tc.mode}, nil)
			run, failures := c.Run(context.Background(), "run", productRows([]string{tc.code, "Producto"}), productMapping(), existing, nil)

			if len(failures) != 0 || run.Failed != 0 {
				t.Fatalf("unexpected failures: %v", failures)
			}
			if run.Succeeded != tc.succeeded || run.Skipped != tc.skipped || run.Processed != 1 {
				t.Fatalf("unexpected counters: %+v", run)
			}
			if tc.wantOp == "" {
				if len(be.calls) != 0 {
					t.Fatalf("expected no backend calls, got %+v", be.calls)
				}
				return
			}
			if len(be.calls) != 1 || be.calls[0].Op != tc.wantOp {
				t.Fatalf("expected one %s call, got %+v", tc.wantOp, be.calls)
			}
			if tc.wantOp == "update" && be.calls[0].ID != 7 {
				t.Fatalf("update should target existing id 7, got %d", be.calls[0].ID)
			}
		})
	}
}

func TestCommitter_EndToEndThreeRows(t *testing.T) {
	t.Parallel()

	be := &fakeBackend{}
	existing := model.NewProductIndex([]model.Product{{ID: 11, Code: "A1", Name: "Viejo"}})
	rows := productRows(
		[]string{"A1", "Producto A"},
		[]string{"B2", "Producto B"},
		[]string{"", "Sin código"},
	)

	c := NewCommitter(be, nil, CommitOptions{Mode: model.ModeCreateAndUpdate}, nil)
	run, failures := c.Run(context.Background(), "run-e2e", rows, productMapping(), existing, nil)

	if run.State != model.RunCompleted {
		t.Fatalf("expected completed, got %s", run.State)
	}
	if run.Succeeded != 2 || run.Failed != 1 || run.Processed != 3 {
		t.Fatalf("unexpected counters: %+v", run)
	}
	if run.Created != 1 || run.Updated != 1 {
		t.Fatalf("unexpected created/updated: %+v", run)
	}
	if len(be.calls) != 2 || be.calls[0] != (backendCall{Op: "update", ID: 11, Code: "A1", Name: "Producto A"}) || be.calls[1].Op != "create" {
		t.Fatalf("unexpected calls: %+v", be.calls)
	}
	if len(failures) != 1 || failures[0].Row != 4 || !errors.Is(failures[0], ErrMissingCode) {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if got := run.Summary(10); got != "2 procesados, 1 errores\nFila 4: registro sin código" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestCommitter_RowFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	be := &fakeBackend{fail: map[string]error{"B2": boom}}
	rows := productRows([]string{"A1", "a"}, []string{"B2", "b"}, []string{"C3", "c"})

	c := NewCommitter(be, nil, CommitOptions{Mode: model.ModeCreateOnly}, nil)
	run, failures := c.Run(context.Background(), "run", rows, productMapping(), nil, nil)

	if run.Succeeded != 2 || run.Failed != 1 || run.Processed != 3 {
		t.Fatalf("unexpected counters: %+v", run)
	}
	if len(failures) != 1 || !errors.Is(failures[0], boom) || failures[0].Code != "B2" || failures[0].Op != "create" {
		t.Fatalf("unexpected failure: %+v", failures)
	}
	if len(be.calls) != 3 {
		t.Fatalf("all rows should be attempted, got %d calls", len(be.calls))
	}
}

func TestCommitter_MonotonicProgress(t *testing.T) {
	t.Parallel()

	var values [][]string
	for i := 0; i < 25; i++ {
		code := fmt.Sprintf("P%02d", i)
		if i%7 == 0 {
			code = ""
		}
		values = append(values, []string{code, "x"})
	}
	rows := productRows(values...)

	var snaps []model.ProgressSnapshot
	c := NewCommitter(&fakeBackend{}, nil, CommitOptions{Mode: model.ModeCreateAndUpdate, YieldEvery: 10}, nil)
	run, _ := c.Run(context.Background(), "run", rows, productMapping(), nil, func(s model.ProgressSnapshot) {
		snaps = append(snaps, s)
	})

	if len(snaps) != len(rows)+1 {
		t.Fatalf("expected %d snapshots, got %d", len(rows)+1, len(snaps))
	}
	for i, s := range snaps[:len(rows)] {
		if s.Processed != i+1 || s.Total != len(rows) || s.Done {
			t.Fatalf("snapshot %d out of order: %+v", i, s)
		}
	}
	final := snaps[len(snaps)-1]
	if !final.Done || final.Processed != run.Total || final.Succeeded+final.Failed != run.Total {
		t.Fatalf("unexpected final snapshot: %+v", final)
	}
}

func TestCommitter_CancelBetweenRows(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	be := &fakeBackend{}
	be.afterOp = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	rows := productRows([]string{"A", "a"}, []string{"B", "b"}, []string{"C", "c"}, []string{"D", "d"})

	var last model.ProgressSnapshot
	c := NewCommitter(be, nil, CommitOptions{Mode: model.ModeCreateOnly}, nil)
	run, _ := c.Run(ctx, "run", rows, productMapping(), nil, func(s model.ProgressSnapshot) { last = s })

	if run.State != model.RunCancelled {
		t.Fatalf("expected cancelled, got %s", run.State)
	}
	// 第二行在取消前已发出，照常完成
	if run.Processed != 2 || run.Succeeded != 2 || len(be.calls) != 2 {
		t.Fatalf("unexpected counters after cancel: %+v calls=%d", run, len(be.calls))
	}
	if last.Done {
		t.Fatalf("cancelled run must not emit a final snapshot")
	}
}

func TestCommitter_ShardedKeepsPerCodeOrder(t *testing.T) {
	t.Parallel()

	headers := []string{"Código", "Nombre"}
	var rows []model.RowRecord
	for i := 0; i < 40; i++ {
		code := fmt.Sprintf("K%d", i%5)
		rows = append(rows, model.NewRowRecord(i+2, headers, []string{code, fmt.Sprintf("n%d", i)}))
	}
	rows = append(rows, model.NewRowRecord(42, headers, []string{"", "sin código"}))

	be := &fakeBackend{}
	var (
		mu    sync.Mutex
		seen  []int
		final model.ProgressSnapshot
	)
	c := NewCommitter(be, nil, CommitOptions{Mode: model.ModeCreateAndUpdate, Workers: 4}, nil)
	run, failures := c.Run(context.Background(), "run", rows, productMapping(), nil, func(s model.ProgressSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Done {
			final = s
			return
		}
		seen = append(seen, s.Processed)
	})

	if run.State != model.RunCompleted || run.Processed != len(rows) {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Succeeded != 40 || run.Failed != 1 || len(failures) != 1 {
		t.Fatalf("unexpected counters: %+v", run)
	}
	for i, p := range seen {
		if p != i+1 {
			t.Fatalf("processed not monotonic at %d: %v", i, seen)
		}
	}
	if !final.Done || final.Processed != len(rows) {
		t.Fatalf("unexpected final snapshot: %+v", final)
	}

	// 同一编码的请求保持源顺序（K0 依次为 n0, n5, n10 ...）
	for k := 0; k < 5; k++ {
		calls := be.callsFor(fmt.Sprintf("K%d", k))
		if len(calls) != 8 {
			t.Fatalf("K%d: expected 8 calls, got %d", k, len(calls))
		}
		for j, call := range calls {
			if want := fmt.Sprintf("n%d", k+5*j); call.Name != want {
				t.Fatalf("K%d call %d: got %s, want %s", k, j, call.Name, want)
			}
		}
	}
}

func TestCommitter_YieldsEveryNRows(t *testing.T) {
	t.Parallel()

	var values [][]string
	for i := 0; i < 25; i++ {
		values = append(values, []string{fmt.Sprintf("Y%02d", i), "x"})
	}
	rows := productRows(values...)

	var (
		processed int
		pausedAt  []int
	)
	c := NewCommitter(&fakeBackend{}, nil, CommitOptions{
		Mode:       model.ModeCreateAndUpdate,
		YieldEvery: 10,
		YieldPause: 15 * time.Millisecond,
	}, nil)
	c.pause = func(ctx context.Context, d time.Duration) {
		if d != 15*time.Millisecond {
			t.Errorf("unexpected pause %v", d)
		}
		pausedAt = append(pausedAt, processed)
	}

	run, _ := c.Run(context.Background(), "run", rows, productMapping(), nil, func(s model.ProgressSnapshot) {
		processed = s.Processed
	})

	if run.State != model.RunCompleted {
		t.Fatalf("unexpected state: %s", run.State)
	}
	// 第 10、20 行后让出；最后一行之后不再等待
	if len(pausedAt) != 2 || pausedAt[0] != 10 || pausedAt[1] != 20 {
		t.Fatalf("unexpected yields: %v", pausedAt)
	}
}

func TestCommitter_ZeroPauseSkipsSleep(t *testing.T) {
	t.Parallel()

	rows := productRows([]string{"A", "a"}, []string{"B", "b"}, []string{"C", "c"})
	c := NewCommitter(&fakeBackend{}, nil, CommitOptions{Mode: model.ModeCreateOnly, YieldEvery: 1}, nil)
	c.pause = func(context.Context, time.Duration) {
		t.Errorf("pause must not be called without a pause duration")
	}
	c.Run(context.Background(), "run", rows, productMapping(), nil, nil)
}

func TestCommitter_ReportsSourceRowNumbers(t *testing.T) {
	t.Parallel()

	headers := []string{"Código", "Nombre"}
	// 空行被解析器丢弃后，行号仍指向文件中的位置
	rows := []model.RowRecord{
		model.NewRowRecord(2, headers, []string{"A1", "a"}),
		model.NewRowRecord(5, headers, []string{"", "sin código"}),
	}

	c := NewCommitter(&fakeBackend{}, nil, CommitOptions{Mode: model.ModeCreateOnly}, nil)
	run, failures := c.Run(context.Background(), "run", rows, productMapping(), nil, nil)

	if len(failures) != 1 || failures[0].Row != 5 {
		t.Fatalf("unexpected failures: %+v", failures)
	}
	if run.Errors[0] != "Fila 5: registro sin código" {
		t.Fatalf("unexpected message: %q", run.Errors[0])
	}
}
