// Package audit はログイン試行の監査ログをSQLiteに追記する。
//
// 監査ログは認証判定には一切使用しない。記録の失敗がログイン結果を
// 変えることはなく、呼び出し元はエラーをログに出力するだけでよい。
package audit
