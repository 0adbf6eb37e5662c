package series

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeriesAppendAndView(t *testing.T) {
	s := New("cv", 2)
	_, ok := s.Last()
	require.False(t, ok)

	s.Append(1)
	s.Append(2)
	view := s.View()
	s.Append(3)

	require.Equal(t, []float64{1, 2}, view)
	require.Equal(t, 3, s.Len())
	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, 3.0, last)
	require.Equal(t, 2.0, s.At(1))
	require.Equal(t, "cv", s.Name())
}

func TestSeriesViewIsCapped(t *testing.T) {
	s := New("pv", 8)
	s.Append(1)
	s.Append(2)

	view := s.View()
	_ = append(view, 99)
	s.Append(3)

	require.Equal(t, 3.0, s.At(2))
}

func TestSeriesResetKeepsOldViews(t *testing.T) {
	s := New("sp", 4)
	s.Append(5)
	old := s.View()

	s.Reset()
	s.Append(7)

	require.Equal(t, []float64{5}, old)
	require.Equal(t, []float64{7}, s.View())
}
