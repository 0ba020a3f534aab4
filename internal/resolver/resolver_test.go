package resolver

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
	"github.com/ginjaninja78/invoice-rollup/internal/logger"
	"github.com/ginjaninja78/invoice-rollup/internal/mapping"
	"github.com/ginjaninja78/invoice-rollup/internal/retry"
)

// scripted replays one response or error per call and records prompts.
type scripted struct {
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (s *scripted) ResolveText(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return r.text, r.err
}

func instantPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestResolveSanitizes(t *testing.T) {
	o := &scripted{replies: []reply{{text: " 「サンプル 新宿店」\n"}}}
	got, err := New(o, instantPolicy()).Resolve(context.Background(), "店舗名", "サンプル新宿", nil)

	require.NoError(t, err)
	assert.Equal(t, "サンプル新宿店", got)
	require.Len(t, o.prompts, 1)
	assert.Contains(t, o.prompts[0], "【入力】\nサンプル新宿\n")
	assert.NotContains(t, o.prompts[0], "【候補】")
}

func TestResolveRetryBound(t *testing.T) {
	o := &scripted{replies: []reply{{err: errors.New("server overloaded")}}}
	_, err := New(o, instantPolicy()).Resolve(context.Background(), "店舗名", "abc", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolution)
	assert.Len(t, o.prompts, 4)
}

func TestResolveFatalNotRetried(t *testing.T) {
	o := &scripted{replies: []reply{{err: errors.New("401 unauthorized")}}}
	_, err := New(o, instantPolicy()).Resolve(context.Background(), "店舗名", "abc", nil)

	assert.ErrorIs(t, err, ErrResolution)
	assert.Len(t, o.prompts, 1)
}

func TestResolveEmptyAfterSanitize(t *testing.T) {
	o := &scripted{replies: []reply{{text: "「」・・"}}}
	_, err := New(o, instantPolicy()).Resolve(context.Background(), "店舗名", "abc", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.ErrorIs(t, err, ErrResolution)
}

func TestResolveNoOracle(t *testing.T) {
	_, err := New(nil, instantPolicy()).Resolve(context.Background(), "店舗名", "abc", nil)
	assert.ErrorIs(t, err, ErrNoOracle)
}

func TestBuildPromptWithCandidates(t *testing.T) {
	p := BuildPrompt("店舗名", "サンプル新宿", []string{"サンプル新宿店", "サンプル渋谷店"})
	assert.Contains(t, p, "「店舗名」")
	assert.Contains(t, p, "【候補】サンプル新宿店 / サンプル渋谷店\n")
	assert.True(t, strings.Index(p, "【候補】") < strings.Index(p, "【入力】"))
}

func newReconciler(t *testing.T, o Oracle) (*Reconciler, *mapping.Store, *eventlog.Recorder) {
	t.Helper()
	store := mapping.NewStore(filepath.Join(t.TempDir(), "mapping.csv"))
	events := &eventlog.Recorder{}
	return NewReconciler(store, New(o, instantPolicy()), events, logger.Discard()), store, events
}

func TestReconcilerStoreHitSkipsOracle(t *testing.T) {
	o := &scripted{}
	rec, store, _ := newReconciler(t, o)
	require.NoError(t, store.Append("サンプル店", "サンプル本店", "店舗名"))

	assert.Equal(t, "サンプル本店", rec.Normalize(context.Background(), "店舗名", "サンプル店株式会社 様"))
	assert.Empty(t, o.prompts)
}

func TestReconcilerResolvesAndPersists(t *testing.T) {
	o := &scripted{replies: []reply{{text: "サンプル新宿店"}}}
	rec, store, events := newReconciler(t, o)
	require.NoError(t, store.Append("サンプル新宿店", "サンプル新宿店", "店舗名"))

	got := rec.Normalize(context.Background(), "店舗名", "㈱サンプル 新宿")
	assert.Equal(t, "サンプル新宿店", got)
	assert.Empty(t, events.Events())

	// the near match was offered as a hint
	require.Len(t, o.prompts, 1)
	assert.Contains(t, o.prompts[0], "【候補】サンプル新宿店")

	v, ok, err := store.Get("サンプル新宿")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "サンプル新宿店", v)

	// second lookup is a cache hit
	assert.Equal(t, "サンプル新宿店", rec.Normalize(context.Background(), "店舗名", "サンプル新宿"))
	assert.Len(t, o.prompts, 1)
}

func TestReconcilerFailureDegradesToCleaned(t *testing.T) {
	o := &scripted{replies: []reply{{err: errors.New("503 service unavailable")}}}
	rec, store, events := newReconciler(t, o)

	got := rec.Normalize(context.Background(), "店舗名", "テスト物流 御中")
	assert.Equal(t, "テスト物流", got)
	assert.Len(t, o.prompts, 4)

	failures := events.ByCategory(eventlog.CategoryResolution)
	require.Len(t, failures, 1)
	assert.Equal(t, "店舗名: テスト物流", failures[0].Value)

	_, ok, err := store.Get("テスト物流")
	require.NoError(t, err)
	assert.False(t, ok)

	// the same key is not retried within the run
	assert.Equal(t, "テスト物流", rec.Normalize(context.Background(), "店舗名", "テスト物流"))
	assert.Len(t, o.prompts, 4)
}

func TestReconcilerEmptyInput(t *testing.T) {
	o := &scripted{}
	rec, _, events := newReconciler(t, o)

	assert.Equal(t, "", rec.Normalize(context.Background(), "店舗名", " ・「」 "))
	assert.Empty(t, o.prompts)
	assert.Empty(t, events.Events())
}
