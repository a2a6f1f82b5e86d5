package document

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firelite/firelite-backend/internal/utils/errors"
	"github.com/firelite/firelite-backend/internal/value"
)

func TestParseName(t *testing.T) {

	tables := []struct {
		name    string
		path    []string
		wantErr error
	}{
		{"projects/demo-project/databases/(default)/documents/users/u1", []string{"users", "u1"}, nil},
		{"projects/demo-project/databases/(default)/documents/users/u1/posts/p1", []string{"users", "u1", "posts", "p1"}, nil},
		{"projects/demo-project/databases/(default)/documents/users", nil, &errors.MalformedRequestError{}},
		{"projects/demo-project/databases/other/documents/users/u1", nil, &errors.NotFoundError{}},
		{"projects/bad_chars!/databases/(default)/documents/users/u1", nil, &errors.MalformedRequestError{}},
		{"projects/demo-project/databases/(default)/collections/users/u1", nil, &errors.MalformedRequestError{}},
		{"users/u1", nil, &errors.MalformedRequestError{}},
		{"projects/demo-project/databases/(default)/documents//u1", nil, &errors.MalformedRequestError{}},
	}

	for _, table := range tables {
		parsed, err := ParseName(table.name)

		if table.wantErr == nil {
			require.NoError(t, err, table.name)
			diff := cmp.Diff(table.path, parsed.Path)
			if diff != "" {
				t.Fatalf("path mismatch for %v (-want +got):\n%v", table.name, diff)
			}
			continue
		}

		require.Error(t, err, table.name)
		assert.IsType(t, table.wantErr, err, table.name)
	}
}

func TestFieldPathNavigation(t *testing.T) {
	fields := map[string]value.Value{
		"a": value.MapOf(map[string]value.Value{
			"b": value.IntOf(7),
		}),
		"top": value.StringOf("x"),
	}

	v, ok := GetField(fields, "a.b")
	require.True(t, ok)
	assert.Equal(t, value.IntOf(7), v)

	_, ok = GetField(fields, "a.missing")
	assert.False(t, ok)

	// Descending through a non-map fails, it does not panic.
	_, ok = GetField(fields, "top.b")
	assert.False(t, ok)

	fields = SetField(fields, "a.c.d", value.BoolOf(true))
	v, ok = GetField(fields, "a.c.d")
	require.True(t, ok)
	assert.Equal(t, value.BoolOf(true), v)

	DeleteField(fields, "a.b")
	_, ok = GetField(fields, "a.b")
	assert.False(t, ok)
}

func TestProjectMask(t *testing.T) {
	fields := map[string]value.Value{
		"a": value.IntOf(1),
		"b": value.IntOf(2),
		"nested": value.MapOf(map[string]value.Value{
			"x": value.StringOf("keep"),
			"y": value.StringOf("drop"),
		}),
	}

	projected := ProjectMask(fields, []string{"a", "nested.x", "ghost"})

	assert.True(t, value.DeepEqual(
		value.MapOf(projected),
		value.MapOf(map[string]value.Value{
			"a": value.IntOf(1),
			"nested": value.MapOf(map[string]value.Value{
				"x": value.StringOf("keep"),
			}),
		}),
	))
}

func TestEqualComparesTimesAndFields(t *testing.T) {
	a := &Document{
		Name:       "projects/p/databases/(default)/documents/users/u1",
		Fields:     map[string]value.Value{"n": value.IntOf(1)},
		CreateTime: "2023-05-01T00:00:00.000Z",
		UpdateTime: "2023-05-01T00:00:00.000Z",
	}
	b := Copy(a)
	assert.True(t, Equal(a, b))

	b.UpdateTime = "2023-05-02T00:00:00.000Z"
	assert.False(t, Equal(a, b))

	b = Copy(a)
	b.Fields["n"] = value.IntOf(2)
	assert.False(t, Equal(a, b))

	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(a, nil))
}
