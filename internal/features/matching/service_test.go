package matching

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/skillbarter/barter-engine/internal/common"
)

type staticDirectory map[string]bool

func (d staticDirectory) Exists(_ context.Context, id string) (bool, error) {
	return d[id], nil
}

type staticPresence map[string]bool

func (p staticPresence) ListOnline(_ context.Context, ids []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for _, id := range ids {
		if p[id] {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

type staticBalances map[string]int64

func (b staticBalances) Balances(_ context.Context, ids []string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, id := range ids {
		out[id] = b[id]
	}
	return out, nil
}

func ids(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.UserID
	}
	return out
}

func newFixture() *Service {
	index := NewSkillIndex()
	index.TeachSkillsChanged("A", []string{"python"})
	index.TeachSkillsChanged("B", []string{"python"})
	index.TeachSkillsChanged("C", []string{"machine learning", "python"})
	index.TeachSkillsChanged("L", []string{"go"})

	dir := staticDirectory{"A": true, "B": true, "C": true, "L": true}
	presence := staticPresence{"A": true, "C": true}
	balances := staticBalances{"A": 10, "B": 50, "C": 40}
	return NewService(index, dir, presence, balances, 0)
}

func TestFindMatchesScenario(t *testing.T) {
	t.Parallel()
	svc := newFixture()

	got, err := svc.FindMatches(context.Background(), "L", []string{"Python"}, 10)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if want := []string{"C", "A", "B"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("order = %v, want %v", ids(got), want)
	}
	for _, c := range got {
		if c.Overlap != 1 {
			t.Fatalf("%s overlap = %d, want 1", c.UserID, c.Overlap)
		}
	}
	if !got[0].Online || got[2].Online {
		t.Fatalf("online flags wrong: %+v", got)
	}
}

func TestFindMatchesRanking(t *testing.T) {
	t.Parallel()
	svc := newFixture()
	ctx := context.Background()

	tests := []struct {
		name    string
		learner string
		skills  []string
		limit   int
		want    []string
	}{
		{"overlap first", "L", []string{"python", "Machine Learning"}, 0, []string{"C", "A", "B"}},
		{"limit truncates", "L", []string{"python"}, 2, []string{"C", "A"}},
		{"learner excluded", "C", []string{"python"}, 0, []string{"A", "B"}},
		{"unknown skill", "L", []string{"haskell"}, 0, []string{}},
		{"empty request lists everyone", "A", nil, 0, []string{"C", "B", "L"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.FindMatches(ctx, tt.learner, tt.skills, tt.limit)
			if err != nil {
				t.Fatalf("FindMatches: %v", err)
			}
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Fatalf("order = %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestFindMatchesErrors(t *testing.T) {
	t.Parallel()
	svc := newFixture()
	ctx := context.Background()

	if _, err := svc.FindMatches(ctx, "ghost", []string{"python"}, 0); !errors.Is(err, common.ErrUnknownUser) {
		t.Fatalf("unknown learner: error = %v", err)
	}
	if _, err := svc.FindMatches(ctx, "L", []string{"python", "  "}, 0); !errors.Is(err, common.ErrInvalidSkillSet) {
		t.Fatalf("malformed skills: error = %v", err)
	}
}

func TestSkillIndexUpdates(t *testing.T) {
	t.Parallel()
	index := NewSkillIndex()
	index.TeachSkillsChanged("a", []string{"go", "python"})
	index.TeachSkillsChanged("b", []string{"python"})
	index.TeachSkillsChanged("a", []string{"rust"})

	if got := index.Teachers("python"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("python teachers = %v", got)
	}
	if got := index.Teachers("go"); len(got) != 0 {
		t.Fatalf("go teachers = %v, want none", got)
	}
	if got := index.Skills("a"); !reflect.DeepEqual(got, []string{"rust"}) {
		t.Fatalf("a skills = %v", got)
	}

	index.TeachSkillsChanged("b", nil)
	if index.Len() != 1 {
		t.Fatalf("Len = %d, want 1", index.Len())
	}

	index.Rebuild(map[string][]string{"x": {"go"}, "y": {"go", "sql"}, "z": nil})
	if got := index.Teachers("go"); !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("after rebuild go teachers = %v", got)
	}
	if index.Len() != 2 {
		t.Fatalf("Len after rebuild = %d, want 2", index.Len())
	}
}

// Читатель не должен видеть пользователя, учащего только части своего набора.
func TestSkillIndexSwapIsAtomic(t *testing.T) {
	t.Parallel()
	index := NewSkillIndex()
	full := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				index.TeachSkillsChanged("u", full)
			} else {
				index.TeachSkillsChanged("u", nil)
			}
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := index.load()
				n := 0
				for _, s := range full {
					if len(snap.bySkill[s]) > 0 {
						n++
					}
				}
				if n != 0 && n != len(full) {
					t.Errorf("half-applied update: %d of %d skills", n, len(full))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkFindMatches(b *testing.B) {
	index := NewSkillIndex()
	dir := staticDirectory{"learner": true}
	for i := 0; i < 1000; i++ {
		index.TeachSkillsChanged(fmt.Sprintf("t%04d", i), []string{"go", fmt.Sprintf("skill%d", i%20)})
	}
	svc := NewService(index, dir, staticPresence{}, staticBalances{}, 20)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.FindMatches(ctx, "learner", []string{"go", "skill3"}, 0); err != nil {
			b.Fatal(err)
		}
	}
}
