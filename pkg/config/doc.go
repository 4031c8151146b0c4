// Package config provides the proxy configuration types and file handling.
//
// A configuration file is JSON or YAML (chosen by extension). Missing fields
// keep the values of Default:
//
//	{
//	  "proxyPort": 8079,
//	  "configSets": [
//	    {"id": "default", "targetUrl": "http://localhost:8078", "requestHeaders": {}}
//	  ],
//	  "activeConfigSet": "default",
//	  "plugins": {"mock": true},
//	  "pluginOrder": ["logger", "cors", "mock", "recorder"],
//	  "pluginConfigs": {"recorder": {"folder": "active"}}
//	}
package config
