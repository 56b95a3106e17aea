package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cayleygraph/quad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quadmap/internal/codec"
)

const testRepositories = `
version: "1"
default: main
stores:
  main:
    index: "sqlite:%s"
    types:
      - name: app.Person
  pets:
    index: "memory:"
    uris:
      - "example.org/animals/**"
`

func writeTestConfig(t *testing.T, extra ...string) string {
	t.Helper()
	dir := t.TempDir()

	repos := filepath.Join(dir, "repositories.yaml")
	body := strings.Replace(testRepositories, "%s", filepath.Join(dir, "main.db"), 1)
	require.NoError(t, os.WriteFile(repos, []byte(body), 0o644))

	cfg := filepath.Join(dir, "quadmap.yaml")
	body = "version: 1\nlog_level: warn\nrepositories: " + repos + "\n" + strings.Join(extra, "\n")
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))
	return cfg
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestStoresCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "--config", cfg, "stores")
	require.NoError(t, err)
	assert.Contains(t, out, "main")
	assert.Contains(t, out, "pets")
	assert.Contains(t, out, "[app.Person]")

	out, err = run(t, "--config", cfg, "stores", "--yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "default: main")
}

func TestRouteCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "--config", cfg, "route", "--type", "app.Person")
	require.NoError(t, err)
	assert.Equal(t, "main\n", out)

	out, err = run(t, "--config", cfg, "route", "http://example.org/animals/rex")
	require.NoError(t, err)
	assert.Equal(t, "pets\n", out)

	out, err = run(t, "--config", cfg, "route", "http://example.org/entity/app.Person_0001")
	require.NoError(t, err)
	assert.Equal(t, "main\n", out)

	// No scheme: expanded under the configured namespace.
	out, err = run(t, "--config", cfg, "route", "app.Person_0001")
	require.NoError(t, err)
	assert.Equal(t, "main\n", out)
}

func TestImportDumpDescribe(t *testing.T) {
	cfg := writeTestConfig(t)
	dir := filepath.Dir(cfg)

	alice := quad.IRI("http://example.org/entity/app.Person_aa")
	quads := []quad.Quad{
		quad.Make(alice, quad.IRI("http://example.org/ns#name"), quad.String("Alice"), nil),
		quad.Make(alice, quad.IRI("http://example.org/ns#knows"), quad.IRI("http://example.org/entity/app.Person_bb"), quad.IRI("http://example.org/graph/people")),
		quad.Make(quad.IRI("http://example.org/entity/app.Person_bb"), quad.IRI("http://example.org/ns#name"), quad.String("Bob"), nil),
	}
	var buf bytes.Buffer
	require.NoError(t, codec.NewJSONCodec().Export(quads, &buf))
	input := filepath.Join(dir, "people.json")
	require.NoError(t, os.WriteFile(input, buf.Bytes(), 0o644))

	out, err := run(t, "--config", cfg, "import", "main", input)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 quads")

	out, err = run(t, "--config", cfg, "dump", "main")
	require.NoError(t, err)
	assert.Contains(t, out, `"Alice"`)
	assert.Contains(t, out, `"Bob"`)

	out, err = run(t, "--config", cfg, "dump", "main", "--format", "json")
	require.NoError(t, err)
	parsed, err := codec.NewJSONCodec().Parse(strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, parsed, 3)

	out, err = run(t, "--config", cfg, "describe", string(alice))
	require.NoError(t, err)
	assert.Contains(t, out, "ns#knows")
	assert.NotContains(t, out, `"Bob"`)

	_, err = run(t, "--config", cfg, "describe", "http://example.org/entity/app.Person_zz")
	assert.Error(t, err)
}

func TestUnknownStoreAndFormat(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := run(t, "--config", cfg, "dump", "nowhere")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "dump", "main", "--format", "turtle")
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "--config", cfg, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 2 stores")
	assert.Contains(t, out, "app.Person -> main")

	broken := filepath.Join(filepath.Dir(cfg), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("default: nowhere\nstores: {}\n"), 0o644))
	_, err = run(t, "--config", cfg, "--repositories", broken, "check")
	assert.Error(t, err)
	assert.Error(t, checkDescriptor(broken, &bytes.Buffer{}))
}

func TestMetricsTextfile(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "quadmap.prom")
	cfg := writeTestConfig(t, "metrics:", "  enabled: true", "  textfile: "+textfile)

	_, err := run(t, "--config", cfg, "dump", "main")
	require.NoError(t, err)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `quadmap_operations_total{op="dump",status="ok"} 1`)
}
