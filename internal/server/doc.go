/*
包 server 提供 HTTP 服务器生命周期管理与知识库的薄管理接口。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误
传播流程，内置 SIGINT/SIGTERM 信号处理。Handler 把编排器暴露为
少量 JSON 端点，供运维与集成使用。

# 端点

  - GET  /healthz            — 健康检查
  - POST /v1/query           — 知识库问答
  - POST /v1/documents       — 采集文档（内联内容或本地路径）
  - DELETE /v1/documents/:id — 删除文档及其全部块
  - GET  /v1/staged          — 列出暂存块
  - POST /v1/staged          — 晋升或丢弃暂存块
  - GET  /metrics            — Prometheus 指标
*/
package server
