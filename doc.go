/*
Package smbはSMB3クライアントのマルチチャネル接続管理を提供するモジュールのルートパッケージです。

1つの認証済みセッションを複数のトランスポート接続（チャネル）で共有し、
チャネル間でのリクエスト分散、障害時のフェイルオーバーと復旧、インターフェースの再検出に伴うチャネル数の調整を行います。

# Packages

  - multichannel: チャネル表、ロードバランサー、フェイルオーバー、マネージャー
  - transport/nic: NETWORK_INTERFACE_INFOの表現とエンコード/デコード、ローカルインターフェースの検出
  - transport/tcp: ダイレクトTCP（ポート445）トランスポート
  - session: セッション境界とチャネルバインディング用の署名鍵導出

# Establish Channels

	mgr, err := multichannel.NewManager(sess, binder, tcp.NewFactory(),
		multichannel.WithMaxChannels(4),
		multichannel.WithStrategy(multichannel.StrategyAdaptive),
		multichannel.WithLogger(log.NewStd()),
	)
	if err != nil {
		return err
	}
	defer mgr.Close()

	mgr.RegisterPrimary(primaryTransport, localNIC, remoteNIC)
	if err := mgr.SetRemoteInterfaceRecords(ioctlOutput); err != nil {
		// 不正なレコードはスキップされ、残りのレコードは登録されます。
		log.Printf("interface list: %v", err)
	}
	if err := mgr.DiscoverLocalInterfaces(); err != nil {
		return err
	}
	if err := mgr.EstablishChannels(ctx); err != nil {
		return err
	}

	ch, err := mgr.Send(ctx, req, payload)
*/
package smb
