// Package config는 애플리케이션 설정을 관리하는 패키지입니다.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 인터페이스는 설정 값에 액세스하기 위한 메서드를 정의합니다.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetStringSlice(key string) []string
	GetAll() map[string]interface{}
	// Unmarshal은 전체 설정을 구조체로 디코딩합니다 (mapstructure 태그 사용).
	Unmarshal(out interface{}) error
}

// viperConfig는 viper를 사용하여 Config 인터페이스를 구현합니다.
type viperConfig struct {
	v *viper.Viper
}

func (c *viperConfig) GetString(key string) string        { return c.v.GetString(key) }
func (c *viperConfig) GetInt(key string) int              { return c.v.GetInt(key) }
func (c *viperConfig) GetBool(key string) bool            { return c.v.GetBool(key) }
func (c *viperConfig) GetStringSlice(key string) []string { return c.v.GetStringSlice(key) }
func (c *viperConfig) GetAll() map[string]interface{}     { return c.v.AllSettings() }
func (c *viperConfig) Unmarshal(out interface{}) error    { return c.v.Unmarshal(out) }

// 설정 디렉토리 경로
const configDir = "configs"

// Options는 Load 동작을 조정합니다.
type Options struct {
	// EnvPrefix 환경 변수 접두사 (예: PAYMENT → PAYMENT_DATABASE_HOST)
	EnvPrefix string
	// Defaults 파일과 환경 변수가 없을 때 사용할 기본값
	Defaults map[string]interface{}
	// Optional true이면 설정 파일이 없어도 기본값과 환경 변수로 동작합니다.
	Optional bool
}

// Load는 지정된 서비스 이름에 해당하는 설정 파일을 로드합니다.
// CONFIG_PATH가 파일을 가리키면 그 파일을, 디렉토리를 가리키면
// {dir}/{service}.yaml 을 읽습니다. 기본 경로는 configs/{service}.yaml 입니다.
func Load(serviceName string, opts Options) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, val := range opts.Defaults {
		v.SetDefault(key, val)
	}

	// 환경 변수 바인딩 설정
	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = serviceName
	}
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := os.Getenv("CONFIG_PATH")
	switch {
	case configPath == "":
		v.SetConfigName(serviceName)
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	case filepath.Ext(configPath) != "":
		v.SetConfigFile(configPath)
	default:
		v.SetConfigName(serviceName)
		v.AddConfigPath(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !(opts.Optional && (errors.As(err, &notFound) || os.IsNotExist(err))) {
			return nil, fmt.Errorf("설정 파일 로드 실패: %w", err)
		}
	}

	return &viperConfig{v: v}, nil
}
