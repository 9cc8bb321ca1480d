// Copyright (c) 2013 Uwe Hoffmann. All rights reserved.

/*
Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are
met:

   * Redistributions of source code must retain the above copyright
notice, this list of conditions and the following disclaimer.
   * Redistributions in binary form must reproduce the above
copyright notice, this list of conditions and the following disclaimer
in the documentation and/or other materials provided with the
distribution.
   * Neither the name of Google Inc. nor the names of its
contributors may be used to endorse or promote products derived from
this software without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS
"AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT
LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR
A PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT
OWNER OR CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT
LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE,
DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY
THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
(INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.
*/

// Package mwdhcfg loads optional serve-mode configuration (host, port,
// media type overrides) from an .ini file, falling back to flag defaults
// when no file is found. Grounded on cmds/rombaserver/main.go's
// findINI/gcfg.ReadFileInto flow.
package mwdhcfg

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/scalingdata/gcfg"
)

// Config is the .ini-backed serve-mode configuration. Any field left at
// its zero value in the file keeps the CLI flag default the caller already
// resolved.
type Config struct {
	Server struct {
		Host string
		Port int
	}
	Media struct {
		ZipMediaType  string
		ZstdMediaType string
	}
}

// FindINI looks for mwdh.ini in the working directory, then in
// ~/.mwdh/mwdh.ini, matching romba's own two-location search order.
func FindINI() (string, error) {
	if exists, err := pathExists("mwdh.ini"); err != nil {
		return "", err
	} else if exists {
		return "mwdh.ini", nil
	}

	u, err := user.Current()
	if err != nil {
		return "", err
	}
	path := filepath.Join(u.HomeDir, ".mwdh", "mwdh.ini")
	exists, err := pathExists(path)
	if err != nil {
		return "", err
	}
	if exists {
		return path, nil
	}
	return "", fmt.Errorf("couldn't find mwdh.ini")
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Load reads path into a fresh Config.
func Load(path string) (*Config, error) {
	cfg := new(Config)
	if err := gcfg.ReadFileInto(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
