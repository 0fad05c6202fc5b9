package eval

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/picklr-io/craftstack/internal/deploy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requirePkl skips tests that need the pkl CLI, which pkl-go drives as a
// subprocess.
func requirePkl(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("pkl"); err != nil {
		t.Skip("pkl executable not found on PATH")
	}
}

func TestEvaluator_LoadProject(t *testing.T) {
	requirePkl(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "craftstack.pkl")
	content := `
stack = "survival"
backend = "aws"
region = read?("prop:region") ?? "eu-west-1"
instanceType = "m5.large"
publicKeyPath = "keys/minecraft.pub"
tags {
  ["Owner"] = "games"
}
policy {
  enforcementLevel = "advisory"
  ruleFile = "policies.json"
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := NewEvaluator(map[string]string{"region": "us-east-2"}).LoadProject(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "survival", p.Stack)
	assert.Equal(t, "aws", p.Backend)
	assert.Equal(t, "us-east-2", p.Region)
	assert.Equal(t, "m5.large", p.InstanceType)
	assert.Equal(t, filepath.Join(dir, "keys", "minecraft.pub"), p.PublicKeyPath)
	assert.Equal(t, map[string]string{"Owner": "games"}, p.Tags)
	require.NotNil(t, p.Policy)
	assert.Equal(t, "advisory", p.Policy.EnforcementLevel)
	assert.Equal(t, filepath.Join(dir, "policies.json"), p.Policy.RuleFile)
}

func TestEvaluator_LoadProjectMissingFile(t *testing.T) {
	requirePkl(t)

	_, err := NewEvaluator(nil).LoadProject(context.Background(), filepath.Join(t.TempDir(), "missing.pkl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate project")
}

func TestProject_ResolvePaths(t *testing.T) {
	p := &Project{
		PublicKeyPath: "minecraft.pub",
		UserDataPath:  "/etc/cloud-init.yaml",
		Policy:        &PolicySettings{RuleFile: "rules/policies.json"},
	}
	p.resolvePaths("/srv/game")

	assert.Equal(t, "/srv/game/minecraft.pub", p.PublicKeyPath)
	assert.Equal(t, "/etc/cloud-init.yaml", p.UserDataPath)
	assert.Empty(t, p.ReadmePath)
	assert.Equal(t, "/srv/game/rules/policies.json", p.Policy.RuleFile)
}

func TestProject_Apply(t *testing.T) {
	cfg := deploy.DefaultConfig()
	cfg.Tags = map[string]string{"Team": "ops", "Owner": "nobody"}

	p := &Project{
		Region:       "us-west-2",
		InstanceType: "m5.large",
		Tags:         map[string]string{"Owner": "games"},
	}
	p.Apply(&cfg)

	assert.Equal(t, "us-west-2", cfg.Region)
	assert.Equal(t, "m5.large", cfg.InstanceType)
	assert.Empty(t, cfg.KeyName, "unset properties keep defaults")
	assert.Equal(t, "cloud-init.yaml", cfg.UserDataPath)
	assert.Equal(t, map[string]string{"Team": "ops", "Owner": "games"}, cfg.Tags)
}
