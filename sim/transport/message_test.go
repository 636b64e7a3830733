package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_TypedAccessors_RoundTrip(t *testing.T) {
	m := NewMessage()
	m.SetFloat32("f32", 1.5)
	m.SetFloat64("f64", 2.25)
	m.SetInt8("i8", -7)
	m.SetInt64("i64", 1<<40)
	m.SetString("s", "hello")
	m.SetBool("b", true)

	f32, ok := m.Float32("f32")
	assert.True(t, ok)
	assert.Equal(t, float32(1.5), f32)

	f64, ok := m.Float64("f64")
	assert.True(t, ok)
	assert.Equal(t, 2.25, f64)

	i8, ok := m.Int8("i8")
	assert.True(t, ok)
	assert.Equal(t, int8(-7), i8)

	i64, ok := m.Int64("i64")
	assert.True(t, ok)
	assert.Equal(t, int64(1<<40), i64)

	s, ok := m.String("s")
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	b, ok := m.Bool("b")
	assert.True(t, ok)
	assert.True(t, b)
}

func TestMessage_MissingKeys_NotOK(t *testing.T) {
	m := NewMessage()
	_, ok := m.Float64("nope")
	assert.False(t, ok)
	_, ok = m.String("nope")
	assert.False(t, ok)
	_, ok = m.Bool("nope")
	assert.False(t, ok)
	_, ok = m.Int64("nope")
	assert.False(t, ok)
}

func TestMessage_JSONRoundTrip_CoercesNumbers(t *testing.T) {
	// GIVEN a message serialized to JSON (all numbers become float64)
	m := NewMessage()
	m.SetInt64("count", 42)
	m.SetFloat64("x", 3.5)
	data, err := json.Marshal(m)
	require.NoError(t, err)

	// WHEN it is decoded back
	var out Message
	require.NoError(t, json.Unmarshal(data, &out))

	// THEN integer getters still work through the float64 representation
	count, ok := out.Int64("count")
	assert.True(t, ok)
	assert.Equal(t, int64(42), count)
	x, ok := out.Float64("x")
	assert.True(t, ok)
	assert.Equal(t, 3.5, x)
}

func TestMessage_Int8InRange(t *testing.T) {
	m := NewMessage()
	m.SetInt8("dir", 3)

	got, err := m.Int8InRange("dir", -5, 5)
	require.NoError(t, err)
	assert.Equal(t, int8(3), got)

	_, err = m.Int8InRange("dir", -1, 1)
	assert.Error(t, err)

	_, err = m.Int8InRange("missing", -1, 1)
	assert.Error(t, err)
}

func TestMessage_KeysSorted_And_Clone(t *testing.T) {
	m := NewMessage()
	m.SetBool("z", true)
	m.SetBool("a", false)
	m.SetBool("m", true)
	assert.Equal(t, []string{"a", "m", "z"}, m.Keys())

	c := m.Clone()
	c.SetBool("extra", true)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 4, c.Len())
}

func TestMessage_NilSafeGetters(t *testing.T) {
	var m *Message
	_, ok := m.Float64("x")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Keys())
	assert.Nil(t, m.Clone())
}
