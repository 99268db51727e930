// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/motion_assessment/internal/device"
	"github.com/relabs-tech/motion_assessment/internal/events"
)

const (
	panelWidth  = 272
	panelHeight = 96
	lineHeight  = 13
)

var (
	panelBackground = color.RGBA{0x10, 0x10, 0x10, 0xff}
	panelText       = color.RGBA{0xe0, 0xe0, 0xe0, 0xff}

	stateColors = map[device.State]color.RGBA{
		device.Idle:       {0x80, 0x80, 0x80, 0xff},
		device.Connecting: {0xf0, 0xc0, 0x20, 0xff},
		device.Connected:  {0x30, 0xd0, 0x50, 0xff},
		device.Error:      {0xe0, 0x40, 0x40, 0xff},
	}
)

// PanelInfo is what the status panel shows.
type PanelInfo struct {
	Slots    []device.Status
	Exercise string
	Elapsed  time.Duration
}

// RenderStatusPanel draws the slot states and the active exercise in the
// 7x13 bitmap font, one line per slot.
func RenderStatusPanel(info PanelInfo) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, panelWidth, panelHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{panelBackground}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{panelText},
		Face: basicfont.Face7x13,
	}

	header := "no exercise"
	if info.Exercise != "" {
		header = fmt.Sprintf("%s  %s", info.Exercise, events.FormatClock(info.Elapsed))
	}
	drawer.Dot = fixed.P(4, lineHeight)
	drawer.DrawString(header)

	for i, s := range info.Slots {
		y := lineHeight * (i + 3)
		c, ok := stateColors[s.State]
		if !ok {
			c = panelText
		}
		draw.Draw(img, image.Rect(4, y-9, 12, y-1), &image.Uniform{c}, image.Point{}, draw.Src)

		line := fmt.Sprintf("%-19s %s", s.Name, s.State)
		if s.Battery != nil {
			line += fmt.Sprintf(" %d%%", *s.Battery)
		}
		drawer.Dot = fixed.P(16, y)
		drawer.DrawString(line)
	}
	return img
}
