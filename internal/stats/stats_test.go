package stats

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvmail/internal/tabular"
)

func compute(t *testing.T, input string, idx int, opts ...Option) (Stats, error) {
	t.Helper()
	r, err := tabular.NewReader(strings.NewReader(input))
	require.NoError(t, err)
	return Compute(context.Background(), r, idx, opts...)
}

func TestCompute_DuplicatesAreCaseInsensitive(t *testing.T) {
	input := "email\na@x.com\nA@X.com\na@x.com\nb@y.com\n"

	for _, mode := range []DedupMode{DedupExact, DedupHashed} {
		t.Run(string(mode), func(t *testing.T) {
			s, err := compute(t, input, 0, WithDedupMode(mode))
			require.NoError(t, err)

			assert.Equal(t, 4, s.TotalRows)
			assert.Equal(t, 4, s.TotalEmails)
			assert.Equal(t, 0, s.TotalEmptyEmails)
			assert.Equal(t, 2, s.TotalDuplicateEmails)
			assert.Equal(t, "email", s.ColumnName)
		})
	}
}

func TestCompute_EmptyAndMissingFields(t *testing.T) {
	input := "name,email\nann,a@x.com\nbob,   \ncarl\ndan,d@x.com\n"

	s, err := compute(t, input, 1)
	require.NoError(t, err)

	assert.Equal(t, 4, s.TotalRows)
	assert.Equal(t, 2, s.TotalEmails)
	assert.Equal(t, 2, s.TotalEmptyEmails)
	assert.Equal(t, s.TotalRows, s.TotalEmails+s.TotalEmptyEmails)
}

func TestCompute_RowCountIgnoresContent(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,email,note\n")
	for i := 0; i < 2500; i++ {
		switch i % 3 {
		case 0:
			fmt.Fprintf(&b, "%d,user%d@example.com,x\n", i, i%50)
		case 1:
			fmt.Fprintf(&b, "%d,,x\n", i)
		default:
			fmt.Fprintf(&b, "%d\n", i)
		}
	}

	s, err := compute(t, b.String(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2500, s.TotalRows)
	assert.Equal(t, s.TotalRows, s.TotalEmails+s.TotalEmptyEmails)
}

func TestCompute_FileLevelErrors(t *testing.T) {
	_, err := compute(t, "a,b,c\n1,2,3\n", 5)
	var rangeErr *tabular.ColumnOutOfRangeError
	assert.ErrorAs(t, err, &rangeErr)

	_, err = compute(t, "", 0)
	assert.ErrorIs(t, err, tabular.ErrEmptyFile)

	s, err := compute(t, "email\na@x.com\n\"open,field\n", 0)
	var formatErr *tabular.InputFormatError
	assert.ErrorAs(t, err, &formatErr)
	assert.Equal(t, Stats{}, s)
}

func TestCompute_MalformedRowsAreCounted(t *testing.T) {
	s, err := compute(t, "email,name\na@x.com,b\"ad\nc@y.com,ok\n", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, s.TotalRows)
	assert.Equal(t, 2, s.TotalEmails)
	assert.Equal(t, 1, s.TotalMalformedRows)
}

func TestCompute_MalformedFieldBeforeEmail(t *testing.T) {
	s, err := compute(t, "name,email\nbo\"b,b@y.com\nann,a@x.com\n", 1)
	require.NoError(t, err)

	assert.Equal(t, 2, s.TotalRows)
	assert.Equal(t, 2, s.TotalEmails)
	assert.Equal(t, 0, s.TotalEmptyEmails)
	assert.Equal(t, 1, s.TotalMalformedRows)
}

func TestCompute_Cancelled(t *testing.T) {
	r, err := tabular.NewReader(strings.NewReader("email\na@x.com\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Compute(ctx, r, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCounter_Distinct(t *testing.T) {
	c := NewCounter(tabular.Column{Index: 0, Name: "email"}, DedupExact)
	for i, v := range []string{"a@x.com", " A@x.com ", "b@x.com", ""} {
		c.Observe(tabular.Row{Number: i + 1, Fields: []string{v}})
	}
	assert.Equal(t, 2, c.Distinct())
	assert.Equal(t, 1, c.Snapshot().TotalDuplicateEmails)
	assert.Equal(t, 1, c.Snapshot().TotalEmptyEmails)
}

func TestParseDedupMode(t *testing.T) {
	m, err := ParseDedupMode("")
	require.NoError(t, err)
	assert.Equal(t, DedupExact, m)

	m, err = ParseDedupMode("HASHED")
	require.NoError(t, err)
	assert.Equal(t, DedupHashed, m)

	_, err = ParseDedupMode("bloom")
	assert.Error(t, err)
}
