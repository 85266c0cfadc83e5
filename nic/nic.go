// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nic holds what the descriptor ring drivers share: the driver
// state machine, the interrupt service engine, errors and counters.
package nic

import "errors"

var (
	ErrNoIOBase      = errors.New("no i/o base address")
	ErrNotRecognized = errors.New("device not recognized")
	ErrRingFull      = errors.New("tx ring full")
	ErrFrameTooLarge = errors.New("frame larger than buffer")
	ErrShortFrame    = errors.New("frame shorter than an ethernet header")
	ErrNotRunning    = errors.New("device not running")
	ErrReleased      = errors.New("device released")
)

// Receiver takes frames from the driver in ring order.  The frame is only
// valid for the duration of the call.
type Receiver interface {
	OnReceive(frame []byte)
}

type ReceiverFunc func(frame []byte)

func (f ReceiverFunc) OnReceive(frame []byte) { f(frame) }

// Discard drops every frame.
var Discard Receiver = ReceiverFunc(func([]byte) {})

const (
	MinFrameBytes = 60
	MaxFrameBytes = 1514
)
