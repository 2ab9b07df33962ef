package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ CredentialCodec   = JSONCredentialCodec{}
	_ Locker            = (*MemoryLocker)(nil)
	_ OAuthStateStore   = (*MemoryOAuthStateStore)(nil)
	_ ConfigProvider    = (*CfgxConfigProvider)(nil)
	_ RawConfigLoader   = FileConfigLoader{}
	_ OptionsResolver   = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
