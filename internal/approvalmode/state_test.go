package approvalmode

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
		wantErr  string
	}{
		{input: "default", expected: Default},
		{input: " AUTO_EDIT ", expected: AutoEdit},
		{input: "auto-edit", expected: AutoEdit},
		{input: "plan", expected: Plan},
		{input: "yolo", expected: Yolo},
		{input: "plna", wantErr: `did you mean "plan"`},
		{input: "something-else", wantErr: "valid: default, auto_edit, plan, yolo"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := Parse(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
		})
	}
}

func TestCycleVisitsAutoEditThenPlan(t *testing.T) {
	s, err := New(Default)
	require.NoError(t, err)

	var seen [][2]Mode
	s.Observe(func(prev, next Mode) {
		seen = append(seen, [2]Mode{prev, next})
	})

	assert.Equal(t, AutoEdit, s.Cycle())
	assert.Equal(t, Plan, s.Cycle())
	assert.Equal(t, Default, s.Cycle())

	assert.Equal(t, [][2]Mode{
		{Default, AutoEdit},
		{AutoEdit, Plan},
		{Plan, Default},
	}, seen)
}

func TestCycleFromYoloReturnsToDefault(t *testing.T) {
	s, err := New(Yolo)
	require.NoError(t, err)
	assert.Equal(t, Default, s.Cycle())
}

func TestSetJumpsDirectly(t *testing.T) {
	s, err := New(Default)
	require.NoError(t, err)

	for _, m := range []Mode{Yolo, Plan, AutoEdit, Default} {
		require.NoError(t, s.Set(m))
		assert.Equal(t, m, s.Get())
	}
}

func TestSetSameModeDoesNotNotify(t *testing.T) {
	s, err := New(Plan)
	require.NoError(t, err)

	calls := 0
	s.Observe(func(prev, next Mode) { calls++ })

	require.NoError(t, s.Set(Plan))
	assert.Equal(t, 0, calls)
}

func TestYoloDisabled(t *testing.T) {
	s, err := New(AutoEdit, WithYoloDisabled(true))
	require.NoError(t, err)
	assert.True(t, s.YoloDisabled())

	calls := 0
	s.Observe(func(prev, next Mode) { calls++ })

	err = s.Set(Yolo)
	require.Error(t, err)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, AutoEdit, te.From)
	assert.Equal(t, Yolo, te.To)
	assert.Contains(t, err.Error(), "disabled by configuration")

	assert.Equal(t, AutoEdit, s.Get())
	assert.Equal(t, 0, calls)
}

func TestNewRejectsDisabledYolo(t *testing.T) {
	_, err := New(Yolo, WithYoloDisabled(true))
	require.Error(t, err)
}

func TestSetUnknownMode(t *testing.T) {
	s, err := New(Default)
	require.NoError(t, err)

	err = s.Set(Mode("turbo"))
	require.Error(t, err)
	assert.Equal(t, Default, s.Get())
}

func TestObserverRemoval(t *testing.T) {
	s, err := New(Default)
	require.NoError(t, err)

	var a, b int
	removeA := s.Observe(func(prev, next Mode) { a++ })
	s.Observe(func(prev, next Mode) { b++ })

	s.Cycle()
	removeA()
	removeA()
	s.Cycle()

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestObserverMayReadState(t *testing.T) {
	s, err := New(Default)
	require.NoError(t, err)

	var observed Mode
	s.Observe(func(prev, next Mode) { observed = s.Get() })

	require.NoError(t, s.Set(Plan))
	assert.Equal(t, Plan, observed)
}

func TestConcurrentTransitionsNotifyInOrder(t *testing.T) {
	s, err := New(Default)
	require.NoError(t, err)

	var mu sync.Mutex
	var last Mode = Default
	broken := false
	s.Observe(func(prev, next Mode) {
		mu.Lock()
		defer mu.Unlock()
		if prev != last {
			broken = true
		}
		last = next
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Cycle()
		}()
	}
	wg.Wait()

	assert.False(t, broken, "observer saw a transition whose previous mode did not match the last one")
	assert.Equal(t, last, s.Get())
}

func TestSuggestBreaksTiesAlphabetically(t *testing.T) {
	// "plo" is two edits from both "plan" and "yolo".
	for range 20 {
		assert.Equal(t, Plan, Suggest("plo"))
	}
	assert.Equal(t, Mode(""), Suggest("zzzzzz"))
}

func TestObserverMayChangeMode(t *testing.T) {
	s, err := New(Default)
	require.NoError(t, err)

	var seen []string
	s.Observe(func(prev, next Mode) {
		seen = append(seen, string(prev)+"->"+string(next))
		if next == Plan {
			assert.NoError(t, s.Set(Default))
		}
	})

	done := make(chan error, 1)
	go func() { done <- s.Set(Plan) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Set from inside an observer deadlocked")
	}
	assert.Equal(t, Default, s.Get())
	assert.Equal(t, []string{"default->plan", "plan->default"}, seen)
}
