package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mnemohq/mnemo/pkg/config"
	"github.com/mnemohq/mnemo/pkg/search"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).NotTo(BeNil())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Version).To(Equal(defaults.Version))
			Expect(cfg.Database.URL).To(Equal(defaults.Database.URL))
			Expect(cfg.Database.MaxConns).To(Equal(defaults.Database.MaxConns))
			Expect(cfg.OpenAI.EmbeddingModel).To(Equal(defaults.OpenAI.EmbeddingModel))
			Expect(cfg.Search.SemanticWeight).To(Equal(defaults.Search.SemanticWeight))
			Expect(cfg.Memory.RecentLimit).To(Equal(defaults.Memory.RecentLimit))
			Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
			Expect(cfg.EventStream.Provider).To(Equal(defaults.EventStream.Provider))
			Expect(cfg.Ingest.Workers).To(Equal(defaults.Ingest.Workers))
		})

		It("matches the engine fusion defaults", func() {
			defaults := config.NewDefaultConfig()
			Expect(defaults.Search.SemanticWeight).To(Equal(search.DefaultSemanticWeight))
			Expect(defaults.Search.TemporalDecay).To(Equal(search.DefaultTemporalDecay))
		})

		It("loads a valid config file and fills missing fields with defaults", func() {
			data := `version = 0

[database]
url = "postgres://db.internal:5432/mnemo"

[search]
semantic_weight = 0.5

[eventstream]
provider = "kafka"
brokers = ["kafka-1:9092", "kafka-2:9092"]
`
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Database.URL).To(Equal("postgres://db.internal:5432/mnemo"))
			Expect(cfg.Search.SemanticWeight).To(Equal(0.5))
			Expect(cfg.EventStream.Provider).To(Equal("kafka"))
			Expect(cfg.EventStream.Brokers).To(HaveLen(2))

			defaults := config.NewDefaultConfig()
			Expect(cfg.Database.MaxConns).To(Equal(defaults.Database.MaxConns))
			Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
		})

		It("rejects unsupported config versions", func() {
			data := "version = 99\n"
			err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		It("round-trips a string key", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("redis.url", "redis://localhost:6379/0")).To(Succeed())

			v, err := c.GetConfigValue("redis.url")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("redis://localhost:6379/0"))
		})

		It("validates numeric keys", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("ingest.workers", "5")).To(Succeed())
			Expect(c.SetConfigValue("ingest.workers", "not-a-number")).To(HaveOccurred())

			Expect(c.SetConfigValue("search.semantic_weight", "0.4")).To(Succeed())
			v, err := c.GetConfigValue("search.semantic_weight")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("0.4"))
		})

		It("rejects unknown keys", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("no.such.key", "v")).To(HaveOccurred())
			_, err = c.GetConfigValue("no.such.key")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidConfigKeys", func() {
		It("lists every supported key exactly once", func() {
			keys := config.ValidConfigKeys()
			seen := map[string]bool{}
			for _, k := range keys {
				Expect(seen[k]).To(BeFalse(), "duplicate key %s", k)
				seen[k] = true
				Expect(config.IsValidConfigKey(k)).To(BeTrue())
			}
			Expect(seen).To(HaveKey("database.url"))
			Expect(seen).To(HaveKey("search.semantic_weight"))
			Expect(seen).To(HaveKey("eventstream.provider"))
		})
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("applies defaults when no file or env is present", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.FromViper(v)
		defaults := config.NewDefaultConfig()
		Expect(cfg.Database.URL).To(Equal(defaults.Database.URL))
		Expect(cfg.Search.TemporalDecay).To(Equal(defaults.Search.TemporalDecay))
	})

	It("lets environment variables override file values", func() {
		data := "[api]\nlisten = \":7777\"\n"
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		os.Setenv("MNEMO_API_LISTEN", ":9999")
		defer os.Unsetenv("MNEMO_API_LISTEN")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.FromViper(v)
		Expect(cfg.API.Listen).To(Equal(":9999"))
	})
})
