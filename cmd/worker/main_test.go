package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ks-enterprise/ks-admin/internal/app"
	_ "github.com/ks-enterprise/ks-admin/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
