/*
Package multichannel は、1つのSMB3セッションに束ねられた複数のチャネルを管理するパッケージです。

  - ChannelInfo: チャネル1本分の状態、カウンター、処理中オペレーション、スコア
  - LoadBalancer: 健全なチャネルの中からリクエストの送信先を選択します
  - Failover: チャネル障害時に処理中オペレーションを退避し、バックオフ付きで復旧を試みます
  - Manager: チャネル表を所有し、インターフェースの組からチャネルを確立・削除します

LoadBalancer と Failover は ChannelManager インターフェースを通じてチャネル表へアクセスします。
*/
package multichannel
