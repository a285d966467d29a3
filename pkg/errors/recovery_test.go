package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_WithPanic(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err, "produce")
		panic("boom")
	}

	err := run()
	require.Error(t, err)

	var pe *PanicError
	require.True(t, As(err, &pe))
	assert.Equal(t, "produce", pe.Operation)
	assert.Equal(t, "boom", pe.PanicValue)
	assert.Equal(t, "panic in produce: boom", err.Error())
	assert.Contains(t, pe.String(), "Stack trace:")
}

func TestRecover_WithoutPanic(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err, "noop")
		return nil
	}
	assert.NoError(t, run())
}

func TestRecover_WithExistingError(t *testing.T) {
	original := New("original")
	run := func() (err error) {
		defer Recover(&err, "analyze")
		err = original
		panic("late panic")
	}

	err := run()
	require.Error(t, err)
	assert.True(t, Is(err, original))
	assert.Contains(t, fmt.Sprintf("%+v", err), "late panic")
}

func TestRecover_ErrorPanicValueUnwraps(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err, "train")
		panic(ErrSingularMatrix)
	}
	assert.True(t, Is(run(), ErrSingularMatrix))
}

func TestSafeExecute(t *testing.T) {
	assert.NoError(t, SafeExecute("ok", func() error { return nil }))

	want := New("fn failed")
	assert.True(t, Is(SafeExecute("fail", func() error { return want }), want))

	err := SafeExecute("panics", func() error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	var pe *PanicError
	require.True(t, As(err, &pe))
	assert.Equal(t, "panics", pe.Operation)
}

func TestSafeCall(t *testing.T) {
	v, err := SafeCall("value", func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = SafeCall("index", func() (int, error) {
		var s []int
		return s[3], nil
	})
	assert.Equal(t, 0, v)
	var pe *PanicError
	assert.True(t, As(err, &pe))
}

func TestRecover_DifferentPanicTypes(t *testing.T) {
	values := []interface{}{"string", 42, 3.14, fmt.Errorf("an error"), struct{ X int }{1}}
	for _, pv := range values {
		t.Run(fmt.Sprintf("%T", pv), func(t *testing.T) {
			err := SafeExecute("typed", func() error { panic(pv) })
			var pe *PanicError
			require.True(t, As(err, &pe))
			assert.Equal(t, pv, pe.PanicValue)
		})
	}
}
