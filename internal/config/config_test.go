package config

import (
	"os"
	"path/filepath"
	"testing"

	"fictures-server/internal/models"
	"fictures-server/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func useSecretsDir(t *testing.T, dir string) {
	t.Helper()
	old := utils.SecretsDir
	utils.SecretsDir = dir
	t.Cleanup(func() { utils.SecretsDir = old })
}

func TestLoadConfig_DefaultsAndSecrets(t *testing.T) {
	dir := t.TempDir()
	useSecretsDir(t, dir)
	writeFile(t, dir, "db_password", "s3cret\n")
	writeFile(t, dir, "generation_api_key", "fic_key_1234567890abcdef")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.DBPassword)
	assert.Equal(t, "", cfg.RedisPassword)
	assert.Equal(t, "aiserver", cfg.TextBackend)
	assert.Equal(t, 10, cfg.PipelineMaxActiveRuns)
	assert.Equal(t, 3, cfg.ImageConcurrency)
	assert.Equal(t, DefaultIntakeLimits(), cfg.Intake)
	assert.Contains(t, cfg.GetDSN(), "s3cret")
	assert.NotContains(t, cfg.MaskedDSN(), "s3cret")

	creds, err := cfg.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "fic_key_1234567890abcdef", creds.APIKey)
	assert.Equal(t, "secret", creds.Profile)
}

func TestLoadConfig_MissingDBPassword(t *testing.T) {
	useSecretsDir(t, t.TempDir())
	_, err := LoadConfig()
	assert.ErrorIs(t, err, utils.ErrSecretNotFound)
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	dir := t.TempDir()
	useSecretsDir(t, dir)
	writeFile(t, dir, "db_password", "pw")
	t.Setenv("TEXT_BACKEND", "gemini")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEXT_BACKEND")
}

func TestCredentials_FromProfileFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "auth.json", `{
		"develop": {"profiles": {"manager": {"apiKey": "fic_profile_key", "email": "manager@fictures.xyz"}}},
		"main": {"profiles": {}}
	}`)

	cfg := &Config{
		TextBackend:     "aiserver",
		ImageBackend:    "aiserver",
		AIServerURL:     "http://ai:8000",
		AuthProfilePath: path,
		AuthProfileEnv:  "develop",
		AuthProfileName: "manager",
	}
	creds, err := cfg.Credentials()
	require.NoError(t, err)
	assert.Equal(t, GenerationCredentials{BaseURL: "http://ai:8000", APIKey: "fic_profile_key", Profile: "develop/manager"}, creds)

	cfg.AuthProfileEnv = "main"
	_, err = cfg.Credentials()
	assert.Error(t, err)
}

func TestCredentials_RequiredForAIServer(t *testing.T) {
	cfg := &Config{TextBackend: "aiserver", ImageBackend: "openai"}
	_, err := cfg.Credentials()
	assert.Error(t, err)

	cfg = &Config{TextBackend: "openai", ImageBackend: "openai"}
	_, err = cfg.Credentials()
	assert.NoError(t, err)
}

func TestImageSpecs_Overrides(t *testing.T) {
	cfg := &Config{StoryImageWidth: 1344, StoryImageHeight: 768}
	specs := cfg.ImageSpecs()
	assert.Equal(t, 1344, specs[models.ImageKindStory].Primary.Width)
	assert.Equal(t, 1792, specs[models.ImageKindScene].Primary.Width)
	assert.Len(t, specs[models.ImageKindComicPanel].Alternates, 1)
}
