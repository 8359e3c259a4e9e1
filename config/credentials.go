package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/aluiziolira/idealista-price-trends/models"
)

var (
	// ErrCredentialsNotFound is returned when the key file cannot be read.
	ErrCredentialsNotFound = errors.New("credentials: key file not found")
	// ErrCredentialsMalformed is returned when the key file is not valid JSON or
	// lacks API_KEY/API_SECRET.
	ErrCredentialsMalformed = errors.New("credentials: key file malformed")
)

type keyFile struct {
	APIKey    *string `json:"API_KEY"`
	APISecret *string `json:"API_SECRET"`
}

// LoadCredentials reads {"API_KEY": "...", "API_SECRET": "..."} from path.
// On any failure it logs a diagnostic and returns zero credentials with
// ErrCredentialsNotFound or ErrCredentialsMalformed.
func LoadCredentials(path string) (models.Credentials, error) {
	creds, err := readCredentials(path)
	if err != nil {
		slog.Error("API key file not found or malformed",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return models.Credentials{}, err
	}
	return creds, nil
}

func readCredentials(path string) (models.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Credentials{}, fmt.Errorf("%w: %s", ErrCredentialsNotFound, path)
		}
		return models.Credentials{}, fmt.Errorf("%w: %v", ErrCredentialsNotFound, err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return models.Credentials{}, fmt.Errorf("%w: %v", ErrCredentialsMalformed, err)
	}
	if kf.APIKey == nil {
		return models.Credentials{}, fmt.Errorf("%w: missing API_KEY", ErrCredentialsMalformed)
	}
	if kf.APISecret == nil {
		return models.Credentials{}, fmt.Errorf("%w: missing API_SECRET", ErrCredentialsMalformed)
	}

	return models.Credentials{Key: *kf.APIKey, Secret: *kf.APISecret}, nil
}
