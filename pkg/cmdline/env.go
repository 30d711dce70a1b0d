// Copyright (c) 2019-2023, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

import (
	"strings"

	"github.com/spf13/pflag"
)

// EnvHandler applies a raw environment variable value onto flag.
type EnvHandler func(flag *pflag.Flag, value string) error

// EnvSetValue overwrites flag's value with value, the default handler
// for scalar flags (string/bool/int/uint32).
func EnvSetValue(flag *pflag.Flag, value string) error {
	return flag.Value.Set(value)
}

// EnvAppendValue appends value to flag's current value, for slice
// flags where an environment variable should add to rather than
// replace the command-line value.
func EnvAppendValue(flag *pflag.Flag, value string) error {
	for _, v := range strings.Split(value, ",") {
		if err := flag.Value.Set(v); err != nil {
			return err
		}
	}
	return nil
}
