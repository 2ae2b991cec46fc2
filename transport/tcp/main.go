/*
Package tcp は、ダイレクトTCP（ポート445）上でSMBメッセージを送受信するトランスポートです。

各メッセージは4バイトのヘッダー（先頭1バイトは0、続く3バイトはビッグエンディアンのメッセージ長）で区切られます。
*/
package tcp

// DefaultPort は、ダイレクトTCPのポート番号です。
const DefaultPort = 445

// MaxMessageSize は、1メッセージの最大長です。
const MaxMessageSize = 0x00FFFFFF

const headerSize = 4
