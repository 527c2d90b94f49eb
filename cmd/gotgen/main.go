// The MIT License
//
// Copyright (c) 2023-2024 by the author(s)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//
// Description:
//
// Command line entry point of the traffic generator.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/pktworks/gotgen/app"
)

const version = "1.0.0"

func main() {
	flags := pflag.NewFlagSet("gotgen", pflag.ContinueOnError)
	help := flags.BoolP("help", "H", false, "This help message")
	showVersion := flags.BoolP("version", "V", false,
		"Version and other info about the binary")
	cfgPath := flags.StringP("config", "C", "",
		"Path to the generator settings file")

	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *help {
		fmt.Println("Options:")
		flags.PrintDefaults()
		return
	}
	if *showVersion {
		fmt.Printf("gotgen %s\n", version)
		return
	}
	if *cfgPath == "" {
		fmt.Fprintln(os.Stderr, "a generator settings file is required, "+
			"see --help")
		os.Exit(1)
	}

	if err := app.Run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "can not run the traffic generator: %v\n", err)
		os.Exit(1)
	}
}
