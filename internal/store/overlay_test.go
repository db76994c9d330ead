package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlay_Stack(t *testing.T) {
	o := NewOverlay()
	var tops []string
	o.OnChange(func(top string) { tops = append(tops, top) })

	_, ok := o.Top()
	assert.False(t, ok)

	o.Open("menu")
	o.Open("share")
	o.Open("menu")

	top, ok := o.Top()
	assert.True(t, ok)
	assert.Equal(t, "menu", top)
	assert.True(t, o.IsOpen("share"))

	assert.True(t, o.Close("share"))
	assert.False(t, o.Close("share"))
	assert.False(t, o.IsOpen("share"))

	name, ok := o.CloseTop()
	assert.True(t, ok)
	assert.Equal(t, "menu", name)
	_, ok = o.CloseTop()
	assert.False(t, ok)

	o.Open("confirm")
	o.CloseAll()
	o.CloseAll()

	assert.Equal(t, []string{"menu", "share", "menu", "menu", "", "confirm", ""}, tops)
}
