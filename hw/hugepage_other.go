// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package hw

import "errors"

var errNoHugePages = errors.New("huge pages: linux only")

type HugePages struct{}

func NewHugePages(n uint) (*HugePages, error) { return nil, errNoHugePages }

func (p *HugePages) DmaAlloc(n, log2Align uint) (*Region, error) { return nil, errNoHugePages }
func (p *HugePages) Translate(phys uint64, n uint) ([]byte, error) {
	return nil, errNoHugePages
}
func (p *HugePages) InUse() uint  { return 0 }
func (p *HugePages) Close() error { return nil }
