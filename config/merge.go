package config

// mergeConfigs merges override configuration into base. Scalars in the
// override win when set; collections are replaced wholesale; extension maps
// are merged one level deep.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}
	result.Source = mergeSource(result.Source, override.Source)
	result.Daemon = mergeDaemon(result.Daemon, override.Daemon)
	if len(override.Collections) > 0 {
		result.Collections = append([]CollectionConfig(nil), override.Collections...)
	}

	if override.Extensions != nil {
		merged := make(map[string]interface{}, len(result.Extensions)+len(override.Extensions))
		for k, v := range result.Extensions {
			merged[k] = v
		}
		for key, value := range override.Extensions {
			if baseMap, ok := merged[key].(map[string]interface{}); ok {
				if overrideMap, ok := value.(map[string]interface{}); ok {
					mergedMap := make(map[string]interface{}, len(baseMap)+len(overrideMap))
					for k, v := range baseMap {
						mergedMap[k] = v
					}
					for k, v := range overrideMap {
						mergedMap[k] = v
					}
					merged[key] = mergedMap
					continue
				}
			}
			merged[key] = value
		}
		result.Extensions = merged
	}

	return &result
}

func mergeSource(base, override SourceConfig) SourceConfig {
	result := base
	if override.Transport != "" {
		result.Transport = override.Transport
	}
	if override.URL != "" {
		result.URL = override.URL
	}
	if override.Token != "" {
		result.Token = override.Token
	}
	if override.Dir != "" {
		result.Dir = override.Dir
	}
	if override.ReconnectInterval != "" {
		result.ReconnectInterval = override.ReconnectInterval
	}
	if override.ReconnectJitter != 0 {
		result.ReconnectJitter = override.ReconnectJitter
	}
	return result
}

func mergeDaemon(base, override DaemonConfig) DaemonConfig {
	result := base
	if override.Addr != "" {
		result.Addr = override.Addr
	}
	if override.DBPath != "" {
		result.DBPath = override.DBPath
	}
	if override.Token != "" {
		result.Token = override.Token
	}
	if override.SeedDir != "" {
		result.SeedDir = override.SeedDir
	}
	return result
}
