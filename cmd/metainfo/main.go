// Copyright © 2021 Rak Laptudirm <raklaptudirm@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command metainfo inspects and creates torrent metainfo files.
//
//	metainfo show <file.torrent>
//	metainfo create -a <announce url> [options] <path>
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"laptudirm.com/x/metainfo/pkg/torrent"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "show":
		err = runShow(os.Args[2:])
	case "create":
		err = runCreate(os.Args[2:])
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: metainfo show <file.torrent>")
	fmt.Fprintln(os.Stderr, "       metainfo create -a <announce url> [options] <path>")
	os.Exit(1)
}

func runShow(args []string) error {
	if len(args) != 1 {
		usage()
	}

	t, err := torrent.ParseFile(args[0])
	if err != nil {
		return err
	}

	fmt.Print(t)
	fmt.Printf("magnet: %s\n", t.MagnetLink())
	return nil
}

func runCreate(args []string) error {
	flags := flag.NewFlagSet("create", flag.ExitOnError)
	announce := flags.String("a", "", "tracker announce url")
	pieceLength := flags.Int64("l", 1<<18, "piece length in bytes")
	name := flags.String("n", "", "torrent name, defaults to the path's last component")
	private := flags.Bool("p", false, "mark the torrent private")
	out := flags.String("o", "", "output file, defaults to <name>.torrent")
	flags.Parse(args)

	if *announce == "" || flags.NArg() != 1 {
		usage()
	}

	path, err := filepath.Abs(flags.Arg(0))
	if err != nil {
		return err
	}

	builder := torrent.NewBuilder(*announce, path, *pieceLength)
	if *name != "" {
		builder = builder.SetName(*name)
	}
	if *private {
		builder = builder.SetPrivacy(true)
	}

	t, err := builder.Build()
	if err != nil {
		return err
	}

	dst := *out
	if dst == "" {
		dst = t.Name + ".torrent"
	}

	if err := t.WriteFile(dst); err != nil {
		return err
	}

	fmt.Printf("%x  %s\n", t.InfoHash(), dst)
	return nil
}
