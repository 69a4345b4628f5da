package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/analyzer"
	"github.com/qs3c/mpesa_anal_server/internal/history"
	"github.com/qs3c/mpesa_anal_server/internal/intake"
	"github.com/qs3c/mpesa_anal_server/internal/job"
	"github.com/qs3c/mpesa_anal_server/internal/model"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/errs"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/kv"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/pubsub"
	"github.com/qs3c/mpesa_anal_server/internal/testutil"
)

var testAnalysisConfig = config.AnalysisConfig{TickIntervalMs: 1, MaxIncrement: 10}

// fakeAnalyzer 记录调用次数，可阻塞到 release 关闭
type fakeAnalyzer struct {
	calls   atomic.Int32
	result  *model.AnalysisResult
	err     error
	release chan struct{}
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, _ *intake.File) (*model.AnalysisResult, error) {
	a.calls.Add(1)
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	r := a.result.Clone()
	return &r, nil
}

// recordingPublisher 收集发布的消息
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []pubsub.ProgressMessage
}

func (p *recordingPublisher) PublishProgress(_ context.Context, msg *pubsub.ProgressMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, *msg)
	return nil
}

func (p *recordingPublisher) snapshot() []pubsub.ProgressMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pubsub.ProgressMessage(nil), p.msgs...)
}

func setupStore(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.Open(context.Background(), kv.NewMemory(), config.HistoryStorageKey)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func setupAnalysisService(t *testing.T, a job.Analyzer, publishers ...ProgressPublisher) (*AnalysisService, *history.Store) {
	t.Helper()

	store := setupStore(t)
	gate := intake.NewGateFromConfig(config.Default().Upload)
	return NewAnalysisService(gate, a, store, testAnalysisConfig, publishers...), store
}

func assertNonDecreasing(t *testing.T, msgs []pubsub.ProgressMessage) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		assert.GreaterOrEqual(t, msgs[i].Progress, msgs[i-1].Progress, "message %d", i)
	}
}

func TestAnalysisService_Submit_EndToEnd(t *testing.T) {
	svc, store := setupAnalysisService(t, analyzer.NewMock(config.AnalysisConfig{}, nil))

	record, err := svc.Submit(context.Background(), "", testutil.TestFile("statement.pdf", 2*1024*1024))
	require.NoError(t, err)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "statement.pdf", list[0].Filename)
	assert.GreaterOrEqual(t, list[0].Result.CreditScore, 0)
	assert.LessOrEqual(t, list[0].Result.CreditScore, 100)
	assert.Equal(t, *record, list[0])
	assert.Equal(t, string(list[0].Result.DecisionStatus), list[0].Status)
}

func TestAnalysisService_Submit_RejectedFiles(t *testing.T) {
	tests := []struct {
		name    string
		file    *intake.File
		wantErr error
	}{
		{"missing file", nil, errs.ErrMissingFile},
		{"exe small", testutil.TestFile("statement.exe", 10), errs.ErrUnsupportedType},
		{"exe huge", testutil.TestFile("statement.exe", 100*1024*1024), errs.ErrUnsupportedType},
		{"pdf too large", testutil.TestFile("statement.pdf", 5*1024*1024+1), errs.ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAnalyzer{result: testutil.TestResult()}
			pub := &recordingPublisher{}
			svc, store := setupAnalysisService(t, fake, pub)

			// 先放一条已有记录
			_, err := store.Append(context.Background(), *testutil.TestResult(), "old.csv")
			require.NoError(t, err)

			_, err = svc.Submit(context.Background(), "s-1", tt.file)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, int32(0), fake.calls.Load(), "analyzer must not be invoked")
			assert.Empty(t, pub.snapshot(), "no job means no progress")
			assert.False(t, svc.InFlight("s-1"))

			list, err := store.List(context.Background())
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestAnalysisService_Submit_AnalyzerFailure(t *testing.T) {
	fake := &fakeAnalyzer{err: errors.New("model offline")}
	pub := &recordingPublisher{}
	svc, store := setupAnalysisService(t, fake, pub)

	_, err := svc.Submit(context.Background(), "s-1", testutil.TestFile("statement.csv", 100))
	assert.ErrorIs(t, err, errs.ErrAnalysisFailed)
	assert.Equal(t, errs.KindAnalysisFailed.Message(), errs.UserMessage(err))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	msgs := pub.snapshot()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, pubsub.StatusFailed, last.Status)
	assert.Equal(t, errs.KindAnalysisFailed.Message(), last.Error)
	assertNonDecreasing(t, msgs)
}

func TestAnalysisService_Submit_ProgressStream(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := setupAnalysisService(t, &fakeAnalyzer{result: testutil.TestResult()}, pub)

	events, unsubscribe := svc.Subscribe("s-1")
	defer unsubscribe()

	record, err := svc.Submit(context.Background(), "s-1", testutil.TestFile("statement.pdf", 1024))
	require.NoError(t, err)

	var got []pubsub.ProgressMessage
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case msg := <-events:
			got = append(got, msg)
			done = msg.Terminal()
		case <-timeout:
			t.Fatal("no terminal message")
		}
	}

	assertNonDecreasing(t, got)
	last := got[len(got)-1]
	assert.Equal(t, pubsub.StatusSucceeded, last.Status)
	assert.Equal(t, record.ID, last.RecordID)
	assert.Equal(t, 100.0, last.Progress)

	for _, msg := range got[:len(got)-1] {
		assert.Equal(t, pubsub.StatusRunning, msg.Status)
		assert.Equal(t, "s-1", msg.SessionID)
		assert.Equal(t, "statement.pdf", msg.Filename)
		assert.NotEmpty(t, msg.Message)
	}
	// 终止消息之前最后一条进度为 100
	assert.Equal(t, 100.0, got[len(got)-2].Progress)

	// 发布者收到相同的序列
	assert.Equal(t, got, pub.snapshot())
}

func TestAnalysisService_Subscribe_OtherSessionSilent(t *testing.T) {
	svc, _ := setupAnalysisService(t, &fakeAnalyzer{result: testutil.TestResult()})

	events, unsubscribe := svc.Subscribe("someone-else")
	defer unsubscribe()

	_, err := svc.Submit(context.Background(), "s-1", testutil.TestFile("statement.pdf", 1024))
	require.NoError(t, err)

	select {
	case msg := <-events:
		t.Fatalf("unexpected message %+v", msg)
	default:
	}
}

func TestAnalysisService_Subscribe_Cancel(t *testing.T) {
	svc, _ := setupAnalysisService(t, &fakeAnalyzer{result: testutil.TestResult()})

	events, unsubscribe := svc.Subscribe("s-1")
	unsubscribe()
	unsubscribe()

	_, ok := <-events
	assert.False(t, ok)

	// 取消订阅后提交不受影响
	_, err := svc.Submit(context.Background(), "s-1", testutil.TestFile("statement.pdf", 1024))
	assert.NoError(t, err)
}

func TestAnalysisService_Submit_Busy(t *testing.T) {
	fake := &fakeAnalyzer{result: testutil.TestResult(), release: make(chan struct{})}
	svc, store := setupAnalysisService(t, fake)

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), "s-1", testutil.TestFile("first.pdf", 10))
		firstErr <- err
	}()

	require.Eventually(t, func() bool { return svc.InFlight("s-1") }, time.Second, 5*time.Millisecond)

	_, err := svc.Submit(context.Background(), "s-1", testutil.TestFile("second.pdf", 10))
	assert.ErrorIs(t, err, errs.ErrBusy)

	// 校验错误优先于忙碌检查
	_, err = svc.Submit(context.Background(), "s-1", testutil.TestFile("second.exe", 10))
	assert.ErrorIs(t, err, errs.ErrUnsupportedType)

	close(fake.release)
	require.NoError(t, <-firstErr)
	assert.False(t, svc.InFlight("s-1"))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first.pdf", list[0].Filename)

	// 完成后可以再次提交
	_, err = svc.Submit(context.Background(), "s-1", testutil.TestFile("third.pdf", 10))
	assert.NoError(t, err)
}

func TestAnalysisService_Submit_SessionsIndependent(t *testing.T) {
	fake := &fakeAnalyzer{result: testutil.TestResult(), release: make(chan struct{})}
	svc, store := setupAnalysisService(t, fake)

	var wg sync.WaitGroup
	for _, session := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(session string) {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), session, testutil.TestFile(session+".pdf", 10))
			assert.NoError(t, err)
		}(session)
	}

	require.Eventually(t, func() bool {
		return svc.InFlight("a") && svc.InFlight("b") && svc.InFlight("c")
	}, time.Second, 5*time.Millisecond)

	close(fake.release)
	wg.Wait()

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestAnalysisService_Submit_CancelledNotPersisted(t *testing.T) {
	fake := &fakeAnalyzer{result: testutil.TestResult(), release: make(chan struct{})}
	pub := &recordingPublisher{}
	svc, store := setupAnalysisService(t, fake, pub)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, "s-1", testutil.TestFile("statement.pdf", 10))
		errCh <- err
	}()

	require.Eventually(t, func() bool { return fake.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
	close(fake.release)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	msgs := pub.snapshot()
	require.NotEmpty(t, msgs)
	assert.Equal(t, pubsub.StatusFailed, msgs[len(msgs)-1].Status)
	assert.Equal(t, "Analysis cancelled.", msgs[len(msgs)-1].Error)
}

func TestAnalysisService_Submit_StoreClosed(t *testing.T) {
	pub := &recordingPublisher{}
	svc, store := setupAnalysisService(t, &fakeAnalyzer{result: testutil.TestResult()}, pub)
	require.NoError(t, store.Close())

	_, err := svc.Submit(context.Background(), "s-1", testutil.TestFile("statement.pdf", 10))
	assert.ErrorIs(t, err, kv.ErrClosed)

	msgs := pub.snapshot()
	require.NotEmpty(t, msgs)
	assert.Equal(t, pubsub.StatusFailed, msgs[len(msgs)-1].Status)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, errs.KindAnalysisFailed.Message(), failureMessage(nil))
	assert.Equal(t, errs.KindAnalysisFailed.Message(), failureMessage(errors.New("raw")))
	assert.Equal(t, "Analysis cancelled.", failureMessage(context.Canceled))
	assert.Equal(t, errs.KindBusy.Message(), failureMessage(errs.ErrBusy))
}
