package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// AuthProfile - одна запись файла профилей.
type AuthProfile struct {
	APIKey string `json:"apiKey"`
	Email  string `json:"email"`
}

type authEnvironment struct {
	Profiles map[string]AuthProfile `json:"profiles"`
}

// LoadAuthProfile читает файл профилей {<env>: {profiles: {<name>: {apiKey, email}}}}
// и возвращает нужный профиль. Читается один раз при старте, дальше ключ живёт в GenerationCredentials.
func LoadAuthProfile(path, env, name string) (AuthProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return AuthProfile{}, fmt.Errorf("failed to open auth profile file %s: %w", path, err)
	}
	defer f.Close()

	var environments map[string]authEnvironment
	if err := cleanenv.ParseJSON(f, &environments); err != nil {
		return AuthProfile{}, fmt.Errorf("failed to parse auth profile file %s: %w", path, err)
	}

	envProfiles, ok := environments[env]
	if !ok {
		return AuthProfile{}, fmt.Errorf("auth profile environment %q not found in %s", env, path)
	}
	profile, ok := envProfiles.Profiles[name]
	if !ok {
		return AuthProfile{}, fmt.Errorf("auth profile %q not found in environment %q", name, env)
	}
	if profile.APIKey == "" {
		return AuthProfile{}, fmt.Errorf("auth profile %s/%s has empty apiKey", env, name)
	}
	return profile, nil
}
