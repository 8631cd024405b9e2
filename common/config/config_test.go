package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type staticSource struct {
	name   string
	values map[string]interface{}
}

func (s *staticSource) GetValue(key string) interface{} {
	v, ok := s.values[key]
	if !ok {
		return nil
	}
	return v
}

func (s *staticSource) Name() string {
	return s.name
}

func TestSourcePrecedence(t *testing.T) {
	m := NewConfigManager()
	opt := m.RegisterOption("commune.some_opt", "test option", "default")

	m.AddSource(&staticSource{name: "first", values: map[string]interface{}{"commune.some_opt": "from-first"}})
	m.AddSource(&staticSource{name: "second", values: map[string]interface{}{"commune.some_opt": "from-second"}})
	m.Load()

	// sources added later shadow earlier ones
	assert.Equal(t, "from-second", opt.GetString())
	assert.Equal(t, "second", opt.ConfigSource.Name())
}

func TestDefaultValue(t *testing.T) {
	m := NewConfigManager()
	optStr := m.RegisterOption("commune.a", "", "fallback")
	optInt := m.RegisterOption("commune.b", "", 42)
	optBool := m.RegisterOption("commune.c", "", false)
	m.Load()

	assert.Equal(t, "fallback", optStr.GetString())
	assert.Equal(t, 42, optInt.GetInt())
	assert.False(t, optBool.GetBool())
	assert.Nil(t, optStr.ConfigSource)
}

func TestTypeCoercion(t *testing.T) {
	m := NewConfigManager()
	optInt := m.RegisterOption("commune.n", "", 0)
	optBool := m.RegisterOption("commune.e", "", false)

	m.AddSource(&staticSource{values: map[string]interface{}{
		"commune.n": "15",
		"commune.e": "yes",
	}})
	m.Load()

	assert.Equal(t, 15, optInt.GetInt())
	assert.True(t, optBool.GetBool())
}

func TestEnvSource(t *testing.T) {
	os.Setenv("COMMUNE_ENVSOURCE_TEST", "hello")
	defer os.Unsetenv("COMMUNE_ENVSOURCE_TEST")

	src := &EnvSource{}
	assert.Equal(t, "hello", src.GetValue("commune.envsource_test"))
	assert.Nil(t, src.GetValue("commune.envsource_missing"))
}
