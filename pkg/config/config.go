package config

import (
	"log"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var dotenvOnce sync.Once

// LoadAndWatch 读取 config/{service}.yaml 并监听变更热更新到 out。
// onChange 在每次热更新成功后调用，可为 nil。
func LoadAndWatch(service string, out interface{}, onChange ...func()) (*viper.Viper, error) {
	// 本地开发可以放 .env，不存在就忽略
	dotenvOnce.Do(func() { _ = godotenv.Load() })

	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 环境变量覆盖，例如：
	//   DEPOSIT_SERVICE_DB_SOURCE_NAME 覆盖 db.source_name
	//   DEPOSIT_SERVICE_LOCK_BACKEND   覆盖 lock.backend
	v.SetEnvPrefix(envPrefix(service))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}

	log.Printf("[%s] config loaded from %s", service, v.ConfigFileUsed())

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("[%s] config file changed: %s", service, e.Name)

		if err := v.Unmarshal(out); err != nil {
			log.Printf("[%s] reload config error: %v", service, err)
			return
		}
		for _, fn := range onChange {
			if fn != nil {
				fn()
			}
		}
		log.Printf("[%s] config reloaded OK", service)
	})

	return v, nil
}

func envPrefix(service string) string {
	return strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
}
