// Package language defines the per-language execution profiles the judge
// supports: which image to run, where the entry file lives, and how to
// compile and start a program.
package language

import (
	"fmt"
	"sort"
	"strings"
)

// Profile describes how one language is compiled and run inside a sandbox.
// Compile is empty for interpreted languages. Commands are executed with
// `sh -c` in /app.
type Profile struct {
	Name     string
	Image    string
	Filename string // canonical entry filename inside /app
	Compile  string
	Run      string
	Env      map[string]string
}

// Compiled reports whether the profile has a separate compile phase.
func (p Profile) Compiled() bool {
	return p.Compile != ""
}

var profiles = map[string]Profile{
	"java": {
		Name:     "java",
		Image:    "eclipse-temurin:17-jdk-jammy",
		Filename: "Main.java",
		Compile:  "javac -d /app Main.java",
		Run:      "java -cp .:/app -XX:MaxRAM=256m Main",
	},
	"python": {
		Name:     "python",
		Image:    "python:3.11-slim",
		Filename: "app.py",
		Run:      "python -B -E -S app.py",
	},
	"c": {
		Name:     "c",
		Image:    "gcc:11",
		Filename: "main.c",
		Compile:  "gcc -O2 -std=c11 -o /app/main main.c -lm",
		Run:      "/app/main",
	},
	"cpp": {
		Name:     "cpp",
		Image:    "gcc:11",
		Filename: "main.cpp",
		Compile:  "g++ -O2 -std=c++17 -o /app/main main.cpp -lm",
		Run:      "/app/main",
	},
	"javascript": {
		Name:     "javascript",
		Image:    "node:18-slim",
		Filename: "index.js",
		Run:      "node --max-old-space-size=256 index.js",
	},
	"csharp": {
		Name:     "csharp",
		Image:    "mcr.microsoft.com/dotnet/sdk:7.0",
		Filename: "Submission.cs",
		Compile: "dotnet new console -o /app --force >/dev/null && " +
			"mv /app/Submission.cs /app/Program.cs && " +
			"dotnet build /app -c Release -o /app/build",
		Run: "/app/build/app",
		Env: map[string]string{
			"DOTNET_CLI_HOME": "/tmp",
			"XDG_DATA_HOME":   "/tmp",
		},
	},
}

// Lookup returns the profile for a language identifier. Matching is
// case-insensitive; unknown languages return an error naming the input.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unsupported language: %q", name)
	}
	return p, nil
}

// Supported returns the sorted list of language identifiers.
func Supported() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether name resolves to a known profile.
func IsSupported(name string) bool {
	_, err := Lookup(name)
	return err == nil
}
