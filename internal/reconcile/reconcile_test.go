package reconcile

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		sent     []int
		accepted []int
		want     Report
		lossy    bool
	}{
		{
			name:     "complete",
			sent:     seq(10),
			accepted: seq(10),
			want:     Report{SentCount: 10, AcceptedCount: 10, MissingIDs: []int{}},
		},
		{
			name:     "prefix rejected",
			sent:     seq(10),
			accepted: []int{4, 5, 6, 7, 8, 9, 10},
			want:     Report{SentCount: 10, AcceptedCount: 7, MissingIDs: []int{1, 2, 3}},
			lossy:    true,
		},
		{
			name:     "duplicates ignored",
			sent:     []int{1, 2, 2, 3},
			accepted: []int{3, 3, 1, 1},
			want:     Report{SentCount: 3, AcceptedCount: 2, MissingIDs: []int{2}},
			lossy:    true,
		},
		{
			name:     "nothing sent",
			want:     Report{MissingIDs: []int{}},
			accepted: nil,
		},
		{
			name:     "stale ids in shared ledger",
			sent:     []int{1, 2},
			accepted: []int{1, 2, 99},
			want:     Report{SentCount: 2, AcceptedCount: 3, MissingIDs: []int{}, UnexpectedIDs: []int{99}},
		},
		{
			name:     "loss alongside stale ids",
			sent:     []int{1, 2, 3},
			accepted: []int{2, 3, 99},
			want:     Report{SentCount: 3, AcceptedCount: 3, MissingIDs: []int{1}, UnexpectedIDs: []int{99}},
			lossy:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.sent, tt.accepted)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.lossy, got.Lossy())
		})
	}
}

func TestReconcileIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	sent := seq(100)
	accepted := seq(100)[20:]
	want := Reconcile(sent, accepted)

	for i := 0; i < 10; i++ {
		s := append([]int(nil), sent...)
		a := append([]int(nil), accepted...)
		rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		rng.Shuffle(len(a), func(i, j int) { a[i], a[j] = a[j], a[i] })
		assert.Equal(t, want, Reconcile(s, a))
	}
	assert.Equal(t, seq(20), want.MissingIDs)
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	sent := []int{3, 1, 2}
	Reconcile(sent, []int{2})
	assert.Equal(t, []int{3, 1, 2}, sent)
}

func TestRenderGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	cases := map[string]Report{
		"report_lossy": Reconcile(seq(10), seq(10)[3:]),
		"report_clean": Reconcile(seq(10), seq(10)),
		"report_stale": Reconcile([]int{1, 2}, []int{1, 2, 99}),
		"report_lossy_stale": Reconcile([]int{1, 2, 3}, []int{2, 3, 99}),
	}
	for name, r := range cases {
		var buf bytes.Buffer
		require.NoError(t, Render(&buf, r))
		g.Assert(t, name, buf.Bytes())
	}
}
