package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

func TestCheckImports(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantDep string
	}{
		{"no imports", `print("hi")`, ""},
		{"helper", `local t = require("takaro")`, ""},
		{"scoped helper", `local t = require('@takaro/helpers')`, ""},
		{"call without parens", `local t = require "takaro"`, ""},
		{"unknown module", `local http = require("socket.http")`, "socket.http"},
		{"second import unknown", "local t = require('takaro')\nlocal x = require('lfs')", "lfs"},
		{"identifier containing require", `local myrequire = 1`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckImports(tt.code)
			if tt.wantDep == "" {
				assert.NoError(t, err)
				return
			}
			var unresolved *shared.UnresolvedDependencyError
			require.True(t, errors.As(err, &unresolved))
			assert.Equal(t, tt.wantDep, unresolved.Specifier)
			assert.Equal(t, "Unable to resolve dependency: "+tt.wantDep, err.Error())
		})
	}
}
